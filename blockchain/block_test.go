package blockchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger(false, true) // Silence mining logs during tests
	os.Exit(m.Run())
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestNewBlock(t *testing.T) {
	b := NewBlock(3, 1700000000000, "", "abc")
	if b.Index != 3 || b.Timestamp != 1700000000000 || b.PreviousHash != "abc" {
		t.Errorf("NewBlock stored wrong fields: %+v", b)
	}
	if b.Data != "" {
		t.Errorf("Expected empty payload to be kept, got %q", b.Data)
	}
	if b.Nonce != 0 || b.Hash != "" || b.MiningTime != 0 {
		t.Errorf("Expected unmined block, got nonce=%d hash=%q miningTime=%d", b.Nonce, b.Hash, b.MiningTime)
	}
}

func TestCalculateHash_MatchesConcatenation(t *testing.T) {
	testCases := []struct {
		name  string
		block *Block
		input string
	}{
		{
			name:  "genesis",
			block: NewBlock(0, 1700000000000, "Genesis Block", "0"),
			input: `00` + `1700000000000` + `"Genesis Block"` + `0`,
		},
		{
			name:  "html_characters_not_escaped",
			block: &Block{Index: 2, Timestamp: 5, Data: "<a&b>", PreviousHash: "ff", Nonce: 42},
			input: `2ff5"<a&b>"42`,
		},
		{
			name:  "quotes_and_newline_escaped",
			block: &Block{Index: 1, Timestamp: 9, Data: "say \"hi\"\n", PreviousHash: "00", Nonce: 7},
			input: `1009"say \"hi\"\n"7`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.block.CalculateHash()
			if err != nil {
				t.Fatalf("CalculateHash returned error: %v", err)
			}
			if want := sha256Hex(tc.input); got != want {
				t.Errorf("CalculateHash() = %s, want sha256(%q) = %s", got, tc.input, want)
			}
		})
	}
}

func TestCalculateHash_IsPure(t *testing.T) {
	b := NewBlock(1, 1, "data", "prev")
	b.Nonce = 17
	first, _ := b.CalculateHash()
	second, _ := b.CalculateHash()
	if first != second {
		t.Errorf("CalculateHash not deterministic: %s vs %s", first, second)
	}
	if b.Nonce != 17 || b.Hash != "" {
		t.Errorf("CalculateHash mutated the block: nonce=%d hash=%q", b.Nonce, b.Hash)
	}
}

func TestMineBlock_LeadingZerosAndRoundTrip(t *testing.T) {
	for _, difficulty := range []int{0, 1, 2, 3} {
		t.Run("difficulty_"+strings.Repeat("0", difficulty), func(t *testing.T) {
			b := NewBlock(1, time.Now().UnixMilli(), "payload", "prev")
			miningTime, err := b.MineBlock(difficulty)
			if err != nil {
				t.Fatalf("MineBlock(%d) returned error: %v", difficulty, err)
			}
			if !strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty)) {
				t.Errorf("Hash %s does not have %d leading zeros", b.Hash, difficulty)
			}
			if miningTime != b.MiningTime || miningTime < 0 {
				t.Errorf("Returned mining time %d, stored %d", miningTime, b.MiningTime)
			}
			if !b.IsHashConsistent() {
				t.Errorf("Stored hash does not match recomputed hash")
			}
			if !b.HasValidProof(difficulty) {
				t.Errorf("HasValidProof(%d) = false for mined block", difficulty)
			}
		})
	}
}

func TestMineBlock_ZeroDifficultyTerminatesImmediately(t *testing.T) {
	b := NewBlock(1, 1, "x", "y")
	if _, err := b.MineBlock(0); err != nil {
		t.Fatalf("MineBlock(0) returned error: %v", err)
	}
	if b.Nonce != 0 {
		t.Errorf("Expected nonce 0 with difficulty 0, got %d", b.Nonce)
	}
	if len(b.Hash) != 64 {
		t.Errorf("Expected a 64 character hex hash, got %d characters", len(b.Hash))
	}
}

func TestMineBlockContext_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBlock(1, 1, "x", "y")
	_, err := b.MineBlockContext(ctx, 1)
	if !IsErrorType(err, ErrorTypeMiningCancelled) {
		t.Fatalf("Expected MINING_CANCELLED error, got %v", err)
	}
	if b.Hash != "" || b.MiningTime != 0 {
		t.Errorf("Cancelled search must not store a hash: hash=%q miningTime=%d", b.Hash, b.MiningTime)
	}
}

func TestMineBlockContext_DeadlineStopsSearch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b := NewBlock(1, 1, "x", "y")
	_, err := b.MineBlockContext(ctx, 64) // Not satisfiable in practice
	if !IsErrorType(err, ErrorTypeMiningCancelled) {
		t.Fatalf("Expected MINING_CANCELLED error, got %v", err)
	}
	if b.Hash != "" {
		t.Errorf("Cancelled search stored hash %q", b.Hash)
	}
	if b.Nonce == 0 {
		t.Errorf("Expected nonce to advance before cancellation")
	}
}

func TestMineBlock_Blake3(t *testing.T) {
	shaBlock := &Block{Index: 1, Timestamp: 1, Data: "x", PreviousHash: "y"}
	blakeBlock := &Block{Index: 1, Timestamp: 1, Data: "x", PreviousHash: "y", Algorithm: BLAKE3}

	shaHash, _ := shaBlock.CalculateHash()
	blakeHash, _ := blakeBlock.CalculateHash()
	if shaHash == blakeHash {
		t.Errorf("Expected different digests for sha256 and blake3")
	}
	if len(blakeHash) != 64 {
		t.Errorf("Expected 256-bit hex digest, got %d characters", len(blakeHash))
	}

	if _, err := blakeBlock.MineBlock(2); err != nil {
		t.Fatalf("MineBlock returned error: %v", err)
	}
	if !strings.HasPrefix(blakeBlock.Hash, "00") || !blakeBlock.IsHashConsistent() {
		t.Errorf("BLAKE3 block not mined correctly: %s", blakeBlock.Hash)
	}
}

func TestIsHashConsistent_DetectsContentChange(t *testing.T) {
	b := NewBlock(1, 1, "original", "prev")
	if _, err := b.MineBlock(1); err != nil {
		t.Fatal(err)
	}
	b.Data = "changed"
	if b.IsHashConsistent() {
		t.Errorf("Expected hash mismatch after data change")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

// firstWinningNonce scans nonces from 0 and returns the first that meets difficulty.
func firstWinningNonce(t *testing.T, b Block, difficulty int) uint64 {
	t.Helper()
	for nonce := uint64(0); ; nonce++ {
		b.Nonce = nonce
		hash, err := b.CalculateHash()
		if err != nil {
			t.Fatalf("CalculateHash failed: %v", err)
		}
		if strings.HasPrefix(hash, strings.Repeat("0", difficulty)) {
			return nonce
		}
	}
}

func TestMineBlock_CountsEveryHash(t *testing.T) {
	for _, data := range []string{"count me", "and me", "Frank pays Grace 2 BTC"} {
		b := NewBlock(1, 1700000000000, data, "00ab")
		before := counterValue(t, hashesComputedTotal)
		if _, err := b.MineBlock(2); err != nil {
			t.Fatalf("MineBlock failed: %v", err)
		}
		if got, want := counterValue(t, hashesComputedTotal)-before, float64(b.Nonce+1); got != want {
			t.Errorf("%q: counted %v hashes, want %v", data, got, want)
		}
	}
}

func TestMineBlock_CountsFinalFullBatch(t *testing.T) {
	// Find a block whose search can be started exactly one batch before the winning nonce.
	var b *Block
	var winning uint64
	for i := 0; b == nil; i++ {
		candidate := NewBlock(1, 1700000000000, fmt.Sprintf("batch %d", i), "00ab")
		if w := firstWinningNonce(t, *candidate, 3); w >= ctxCheckInterval-1 {
			b, winning = candidate, w
		}
	}
	b.Nonce = winning - (ctxCheckInterval - 1)

	before := counterValue(t, hashesComputedTotal)
	if _, err := b.MineBlock(3); err != nil {
		t.Fatalf("MineBlock failed: %v", err)
	}
	if b.Nonce != winning {
		t.Fatalf("Mined nonce %d, want %d", b.Nonce, winning)
	}
	if got := counterValue(t, hashesComputedTotal) - before; got != ctxCheckInterval {
		t.Errorf("Counted %v hashes for a search of exactly %d, want %d", got, ctxCheckInterval, ctxCheckInterval)
	}
}
