// utils/logger.go
package utils

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Global verbose flag
var Verbose = true

var logger = log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lmicroseconds)

// InitLogger configures verbosity and, when silent is set, discards all output.
func InitLogger(verbose bool, silent bool) {
	Verbose = verbose
	out := io.Writer(os.Stdout)
	if silent {
		out = io.Discard
	}
	logger = log.New(out, "", log.Ldate|log.Ltime|log.Lmicroseconds)
}

// GetLogger returns the logger currently in use
func GetLogger() *log.Logger {
	return logger
}

// SetLogger replaces the logger, typically to restore one saved with GetLogger
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}

// LogInfo logs an info message
func LogInfo(format string, args ...interface{}) {
	logger.Printf("[INFO] "+format, args...)
}

// LogDebug logs a debug message if verbose mode is enabled
func LogDebug(format string, args ...interface{}) {
	if Verbose {
		logger.Printf("[DEBUG] "+format, args...)
	}
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	logger.Printf("[ERROR] "+format, args...)
}

// SetVerbose sets the verbose logging mode
func SetVerbose(v bool) {
	Verbose = v
}

// GetVerbose returns the current verbose logging mode
func GetVerbose() bool {
	return Verbose
}

// ShortHash trims a hex hash for log lines
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}

// PrintStartupMessage prints a formatted startup message
func PrintStartupMessage(chainID string, port int, difficulty int) {
	fmt.Println("---------------------------------------------------")
	fmt.Printf("| Blockchain Demo Started                         |\n")
	fmt.Printf("| Chain ID: %-37s |\n", chainID)
	fmt.Printf("| Port: %-41d |\n", port)
	fmt.Printf("| Difficulty: %-35d |\n", difficulty)
	fmt.Printf("| Mode: %-41s |\n", fmt.Sprintf("HTTP Server (:%d)", port))
	fmt.Println("---------------------------------------------------")
}
