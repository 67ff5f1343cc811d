package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	// GenesisData is the payload of the first block of every chain.
	GenesisData = "Genesis Block"
	// RootHash is the previous-hash sentinel carried by the genesis block.
	RootHash = "0"
	// DefaultDifficulty is the number of leading zeros required by a new chain.
	DefaultDifficulty = 2
	// EmptyBlockData replaces a blank payload submitted through the API.
	EmptyBlockData = "Empty Block"
)

// AutoMineTransactions are the payloads mined in sequence by the auto-mine action.
var AutoMineTransactions = []string{
	"Bob pays Charlie 5 BTC",
	"Charlie pays Dave 3 BTC",
	"Dave pays Eve 1 BTC",
	"Eve pays Frank 0.5 BTC",
	"Frank pays Grace 2 BTC",
}

// HashAlgorithm selects the 256-bit digest used for block hashes.
type HashAlgorithm string

const (
	// SHA256 is the default digest.
	SHA256 HashAlgorithm = "sha256"
	// BLAKE3 produces a 256-bit BLAKE3 digest.
	BLAKE3 HashAlgorithm = "blake3"
)

// ParseHashAlgorithm maps a configuration value to a HashAlgorithm.
// An empty value selects SHA256.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sha256", "sha-256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

// Sum returns the hex-encoded digest of msg.
func (a HashAlgorithm) Sum(msg []byte) string {
	if a == BLAKE3 {
		sum := blake3.Sum256(msg)
		return hex.EncodeToString(sum[:])
	}
	sum := sha256.Sum256(msg)
	return hex.EncodeToString(sum[:])
}

// String returns the canonical name, "sha256" for the zero value.
func (a HashAlgorithm) String() string {
	if a == "" {
		return string(SHA256)
	}
	return string(a)
}
