package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// ctxCheckInterval is how many nonces are tried between context checks.
const ctxCheckInterval = 1024

/**
 * Block represents a single block in the blockchain.
 * Fields are plain and mutable: nothing keeps Hash in sync with Data or
 * PreviousHash except an explicit CalculateHash or MineBlock call.
 */
type Block struct {
	Index        uint64        `json:"index"`               // Position of the block in the chain
	Timestamp    int64         `json:"timestamp"`           // Creation time, milliseconds since epoch
	Data         string        `json:"data"`                // Opaque payload
	PreviousHash string        `json:"previousHash"`        // Hash of the previous block in the chain
	Nonce        uint64        `json:"nonce"`               // Number varied during mining
	Hash         string        `json:"hash"`                // Hex digest, empty until mined
	MiningTime   int64         `json:"miningTime"`          // Duration of the last successful search in ms
	Algorithm    HashAlgorithm `json:"algorithm,omitempty"` // Digest used by CalculateHash, SHA256 when empty
}

/**
 * NewBlock initializes an unmined block. Inputs are not validated.
 *
 * Parameters:
 *   - index: Position of the block in the blockchain
 *   - timestamp: Creation time in milliseconds since epoch
 *   - data: Payload, may be empty
 *   - previousHash: Hash of the last block in the chain
 *
 * Returns:
 *   - A pointer to the newly created block
 */
func NewBlock(index uint64, timestamp int64, data string, previousHash string) *Block {
	return &Block{
		Index:        index,
		Timestamp:    timestamp,
		Data:         data,
		PreviousHash: previousHash,
		Nonce:        0,
		Hash:         "",
		MiningTime:   0,
	}
}

// canonicalData encodes the payload as a JSON string without HTML escaping.
func canonicalData(data string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// hashPrefix builds index‖previousHash‖timestamp‖json(data), the part of the
// hash input that does not change while mining.
func (b *Block) hashPrefix() ([]byte, error) {
	payload, err := canonicalData(b.Data)
	if err != nil {
		return nil, NewError(ErrorTypeHashing, "failed to serialize block data").WithIndex(int(b.Index)).Wrap(err)
	}
	prefix := make([]byte, 0, len(b.PreviousHash)+len(payload)+48)
	prefix = strconv.AppendUint(prefix, b.Index, 10)
	prefix = append(prefix, b.PreviousHash...)
	prefix = strconv.AppendInt(prefix, b.Timestamp, 10)
	prefix = append(prefix, payload...)
	return prefix, nil
}

/**
 * CalculateHash returns the digest of index, previous hash, timestamp,
 * JSON-encoded data and nonce, concatenated without separators.
 * It does not modify the block.
 */
func (b *Block) CalculateHash() (string, error) {
	prefix, err := b.hashPrefix()
	if err != nil {
		return "", err
	}
	return b.Algorithm.Sum(strconv.AppendUint(prefix, b.Nonce, 10)), nil
}

// IsHashConsistent reports whether the stored hash matches the block's current content.
func (b *Block) IsHashConsistent() bool {
	hash, err := b.CalculateHash()
	return err == nil && hash == b.Hash
}

// HasValidProof reports whether the stored hash meets difficulty.
func (b *Block) HasValidProof(difficulty int) bool {
	return b.Hash != "" && strings.HasPrefix(b.Hash, target(difficulty))
}

func target(difficulty int) string {
	if difficulty <= 0 {
		return ""
	}
	return strings.Repeat("0", difficulty)
}

/**
 * MineBlock performs Proof-of-Work mining by incrementing the nonce from its
 * current value until the hash starts with difficulty '0' characters.
 * The search has no upper bound: a difficulty the hash cannot satisfy in
 * practice (or above the digest length) blocks forever. Use MineBlockContext
 * when the caller needs a deadline.
 *
 * Parameters:
 *   - difficulty: The number of leading zero characters required in the hash
 *
 * Returns:
 *   - int64: Elapsed mining time in milliseconds
 *   - error: Only when the payload cannot be serialized
 */
func (b *Block) MineBlock(difficulty int) (int64, error) {
	return b.mine(context.Background(), difficulty)
}

// MineBlockContext is MineBlock with cancellation checked between nonces.
// On cancellation Hash and MiningTime are left untouched and Nonce holds the
// last value tried.
func (b *Block) MineBlockContext(ctx context.Context, difficulty int) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return b.mine(ctx, difficulty)
}

func (b *Block) mine(ctx context.Context, difficulty int) (int64, error) {
	start := time.Now()
	prefixStr := target(difficulty)

	if err := ctx.Err(); err != nil {
		miningCancelledTotal.Inc()
		return 0, NewError(ErrorTypeMiningCancelled, "mining cancelled before start").WithIndex(int(b.Index)).Wrap(err)
	}

	prefix, err := b.hashPrefix()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(prefix), len(prefix)+20)
	copy(buf, prefix)

	var tried, counted uint64 = 1, 0
	hash := b.Algorithm.Sum(strconv.AppendUint(buf[:len(prefix)], b.Nonce, 10))
	for !strings.HasPrefix(hash, prefixStr) {
		if tried%ctxCheckInterval == 0 {
			hashesComputedTotal.Add(float64(tried - counted))
			counted = tried
			if err := ctx.Err(); err != nil {
				miningCancelledTotal.Inc()
				return 0, NewErrorf(ErrorTypeMiningCancelled, "mining cancelled at nonce %d", b.Nonce).WithIndex(int(b.Index)).Wrap(err)
			}
		}
		b.Nonce++
		hash = b.Algorithm.Sum(strconv.AppendUint(buf[:len(prefix)], b.Nonce, 10))
		tried++
	}
	hashesComputedTotal.Add(float64(tried - counted))

	b.Hash = hash
	b.MiningTime = time.Since(start).Milliseconds()
	utils.LogInfo("Block %d mined: %s in %dms (nonce %d)", b.Index, b.Hash, b.MiningTime, b.Nonce)
	return b.MiningTime, nil
}
