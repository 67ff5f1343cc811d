package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v2"

	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// DefaultPort is the HTTP API port used when nothing else is configured.
const DefaultPort = 3002

// DefaultAllowedDifficulties is the menu of difficulties offered by the API.
var DefaultAllowedDifficulties = []int{1, 2, 3, 4, 5}

// AppConfig holds all startup configurations
type AppConfig struct {
	Port                int
	Verbose             bool
	Difficulty          int
	HashAlgorithm       blockchain.HashAlgorithm
	AllowedDifficulties []int
	MiningTimeout       time.Duration // 0 means mining is unbounded
	Demo                bool          // Run the scripted console scenario instead of serving HTTP
	ConfigFile          string
}

// fileConfig mirrors the optional YAML configuration file.
type fileConfig struct {
	Server struct {
		Port    int   `yaml:"port"`
		Verbose *bool `yaml:"verbose"`
	} `yaml:"server"`

	Blockchain struct {
		Difficulty          *int   `yaml:"difficulty"`
		HashAlgorithm       string `yaml:"hash_algorithm"`
		AllowedDifficulties []int  `yaml:"allowed_difficulties"`
		MiningTimeout       string `yaml:"mining_timeout"`
	} `yaml:"blockchain"`
}

// Default returns the configuration used when no file, env or flag overrides it.
func Default() *AppConfig {
	return &AppConfig{
		Port:                DefaultPort,
		Verbose:             true,
		Difficulty:          blockchain.DefaultDifficulty,
		HashAlgorithm:       blockchain.SHA256,
		AllowedDifficulties: append([]int(nil), DefaultAllowedDifficulties...),
	}
}

// LoadDotEnv loads .env.test if present, otherwise .env. Missing files are not an error.
func LoadDotEnv() {
	if _, err := os.Stat(".env.test"); err == nil {
		if err := godotenv.Load(".env.test"); err != nil {
			utils.LogError("Error loading .env.test file: %v", err)
		} else {
			utils.LogInfo("Successfully loaded .env.test file")
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			utils.LogError("Error loading .env file: %v", err)
		} else {
			utils.LogInfo("Successfully loaded .env file")
		}
	} else {
		utils.LogDebug("No .env or .env.test file found, using environment variables or defaults.")
	}
}

/**
 * Load builds the configuration. Precedence, lowest first: defaults, YAML
 * file (-config or CONFIG_FILE), environment variables, command line flags.
 *
 * Parameters:
 *   - args: Command line arguments without the program name
 */
func Load(args []string) (*AppConfig, error) {
	fs := flag.NewFlagSet("blockchain-demo", flag.ContinueOnError)
	port := fs.Int("port", DefaultPort, "Port for the HTTP API")
	verbose := fs.Bool("verbose", true, "Enable detailed logging")
	difficulty := fs.Int("difficulty", blockchain.DefaultDifficulty, "Initial mining difficulty (leading zero characters)")
	hashAlgorithm := fs.String("hash", string(blockchain.SHA256), "Block hash algorithm: sha256 or blake3")
	allowed := fs.String("allowed-difficulties", joinInts(DefaultAllowedDifficulties), "Comma-separated difficulties accepted by the API")
	miningTimeout := fs.Duration("mining-timeout", 0, "Deadline for a single mining request, 0 for none")
	demo := fs.Bool("demo", false, "Run the scripted console demo and exit")
	configPath := fs.String("config", "", "Optional YAML configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if set["config"] {
		path = *configPath
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if set["port"] {
		cfg.Port = *port
	}
	if set["verbose"] {
		cfg.Verbose = *verbose
	}
	if set["difficulty"] {
		cfg.Difficulty = *difficulty
	}
	if set["hash"] {
		algorithm, err := blockchain.ParseHashAlgorithm(*hashAlgorithm)
		if err != nil {
			return nil, err
		}
		cfg.HashAlgorithm = algorithm
	}
	if set["allowed-difficulties"] {
		values, err := parseInts(*allowed)
		if err != nil {
			return nil, fmt.Errorf("invalid -allowed-difficulties: %w", err)
		}
		cfg.AllowedDifficulties = values
	}
	if set["mining-timeout"] {
		cfg.MiningTimeout = *miningTimeout
	}
	if set["demo"] {
		cfg.Demo = *demo
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Server.Port != 0 {
		c.Port = fc.Server.Port
	}
	if fc.Server.Verbose != nil {
		c.Verbose = *fc.Server.Verbose
	}
	if fc.Blockchain.Difficulty != nil {
		c.Difficulty = *fc.Blockchain.Difficulty
	}
	if fc.Blockchain.HashAlgorithm != "" {
		algorithm, err := blockchain.ParseHashAlgorithm(fc.Blockchain.HashAlgorithm)
		if err != nil {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		c.HashAlgorithm = algorithm
	}
	if len(fc.Blockchain.AllowedDifficulties) > 0 {
		c.AllowedDifficulties = fc.Blockchain.AllowedDifficulties
	}
	if fc.Blockchain.MiningTimeout != "" {
		timeout, err := time.ParseDuration(fc.Blockchain.MiningTimeout)
		if err != nil {
			return fmt.Errorf("config file %s: invalid mining_timeout: %w", path, err)
		}
		c.MiningTimeout = timeout
	}
	utils.LogInfo("Configuration file loaded: %s", path)
	return nil
}

func (c *AppConfig) applyEnv() error {
	c.Port = getEnvInt("API_PORT", c.Port)
	c.Difficulty = getEnvInt("DIFFICULTY", c.Difficulty)

	if v := os.Getenv("VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
	if v := os.Getenv("DEMO"); v != "" {
		c.Demo = v == "true" || v == "1"
	}
	if v := os.Getenv("HASH_ALGORITHM"); v != "" {
		algorithm, err := blockchain.ParseHashAlgorithm(v)
		if err != nil {
			return fmt.Errorf("HASH_ALGORITHM: %w", err)
		}
		c.HashAlgorithm = algorithm
	}
	if v := os.Getenv("ALLOWED_DIFFICULTIES"); v != "" {
		values, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("ALLOWED_DIFFICULTIES: %w", err)
		}
		c.AllowedDifficulties = values
	}
	if v := os.Getenv("MINING_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MINING_TIMEOUT: %w", err)
		}
		c.MiningTimeout = timeout
	}
	return nil
}

// Validate checks ranges that would make the process unusable.
func (c *AppConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Difficulty < 0 {
		return fmt.Errorf("difficulty must not be negative, got %d", c.Difficulty)
	}
	if len(c.AllowedDifficulties) == 0 {
		return fmt.Errorf("allowed difficulties must not be empty")
	}
	for _, d := range c.AllowedDifficulties {
		if d <= 0 {
			return fmt.Errorf("allowed difficulties must be positive, got %d", d)
		}
	}
	if c.MiningTimeout < 0 {
		return fmt.Errorf("mining timeout must not be negative, got %s", c.MiningTimeout)
	}
	return nil
}

// IsAllowedDifficulty reports whether d is on the API's difficulty menu.
func (c *AppConfig) IsAllowedDifficulty(d int) bool {
	for _, allowed := range c.AllowedDifficulties {
		if allowed == d {
			return true
		}
	}
	return false
}

func getEnvInt(key string, defaultValue int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	valInt, err := strconv.Atoi(strings.TrimSpace(valStr))
	if err != nil {
		utils.LogError("Invalid integer value for %s: %s. Using %d.", key, valStr, defaultValue)
		return defaultValue
	}
	return valInt
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
