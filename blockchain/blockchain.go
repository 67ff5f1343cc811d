package blockchain

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

/**
 * Blockchain represents the chain of blocks.
 * It owns its blocks exclusively, the active mining difficulty and the
 * history of mining durations recorded by AddBlock.
 *
 * Every mutating call holds the write lock for the whole mining search, so a
 * chain never has two searches in flight.
 */
type Blockchain struct {
	id          string        // Unique identifier of this chain instance
	blocks      []*Block      // Ordered list of blocks in the chain
	difficulty  int           // Mining difficulty (number of leading zeros required)
	algorithm   HashAlgorithm // Digest used for new blocks
	miningTimes []int64       // Durations in ms, one per AddBlock
	index       *BlockIndex   // Optional lookup table kept in sync with blocks
	mutex       sync.RWMutex  // Mutex to ensure thread-safe access to the blockchain
}

// ValidationResult is the outcome of a chain walk. InvalidIndex is -1 when valid.
type ValidationResult struct {
	Valid        bool   `json:"valid"`
	InvalidIndex int    `json:"invalidBlock"`
	Reason       string `json:"reason,omitempty"`
}

// Reasons reported by ValidateFull.
const (
	ReasonBrokenLink   = "broken_link"
	ReasonHashMismatch = "hash_mismatch"
)

// ChainStats summarizes the chain for display.
type ChainStats struct {
	ChainID           string        `json:"chainId"`
	Blocks            int           `json:"blocks"`
	Difficulty        int           `json:"difficulty"`
	Algorithm         HashAlgorithm `json:"algorithm"`
	MinedBlocks       int           `json:"minedBlocks"`
	AverageMiningTime int64         `json:"averageMiningTime"`
	LastMiningTime    int64         `json:"lastMiningTime"`
}

// Option configures a Blockchain at construction.
type Option func(*Blockchain)

// WithDifficulty sets the initial difficulty.
func WithDifficulty(difficulty int) Option {
	return func(bc *Blockchain) { bc.difficulty = difficulty }
}

// WithHashAlgorithm selects the digest used for blocks created by this chain.
func WithHashAlgorithm(algorithm HashAlgorithm) Option {
	return func(bc *Blockchain) { bc.algorithm = algorithm }
}

// WithBlockIndex keeps index updated after every mutation.
func WithBlockIndex(index *BlockIndex) Option {
	return func(bc *Blockchain) { bc.index = index }
}

/**
 * NewBlockchain creates an empty chain. Call Init to mine the genesis block.
 *
 * Returns:
 *   - A pointer to the newly created blockchain
 */
func NewBlockchain(opts ...Option) *Blockchain {
	bc := &Blockchain{
		id:          uuid.New().String(),
		blocks:      make([]*Block, 0),
		difficulty:  DefaultDifficulty,
		algorithm:   SHA256,
		miningTimes: make([]int64, 0),
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.algorithm == "" {
		bc.algorithm = SHA256
	}
	difficultyGauge.Set(float64(bc.difficulty))
	return bc
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// ID returns the identifier of this chain instance.
func (bc *Blockchain) ID() string {
	return bc.id
}

// Init mines the genesis block and appends it as the only block.
func (bc *Blockchain) Init() error {
	return bc.InitContext(context.Background())
}

// InitContext is Init with a cancellable genesis search.
func (bc *Blockchain) InitContext(ctx context.Context) error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	return bc.initLocked(ctx)
}

func (bc *Blockchain) initLocked(ctx context.Context) error {
	genesis, err := bc.mineGenesis(ctx)
	if err != nil {
		return err
	}
	if err := bc.indexBlock(genesis); err != nil {
		return err
	}
	bc.blocks = []*Block{genesis}
	chainLengthGauge.Set(1)
	utils.LogInfo("Chain %s initialized with genesis %s", bc.id, utils.ShortHash(genesis.Hash))
	return nil
}

// mineGenesis mines a genesis block without touching the chain.
func (bc *Blockchain) mineGenesis(ctx context.Context) (*Block, error) {
	genesis := NewBlock(0, nowMillis(), GenesisData, RootHash)
	genesis.Algorithm = bc.algorithm

	miningTime, err := genesis.MineBlockContext(ctx, bc.difficulty)
	if err != nil {
		return nil, err
	}
	observeMining("genesis", miningTime)
	return genesis, nil
}

func (bc *Blockchain) indexBlock(block *Block) error {
	if bc.index == nil {
		return nil
	}
	return bc.index.SaveBlock(block)
}

// GetLatestBlock returns a copy of the last block in the chain.
func (bc *Blockchain) GetLatestBlock() (Block, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if len(bc.blocks) == 0 {
		return Block{}, NewError(ErrorTypeEmptyChain, "blockchain has no blocks, call Init first")
	}
	return *bc.blocks[len(bc.blocks)-1], nil
}

/**
 * AddBlock mines a new block holding data on top of the current tail and
 * appends it. The chain is only extended once the search succeeds.
 *
 * Parameters:
 *   - data: Payload of the new block
 *
 * Returns:
 *   - Block: Copy of the appended block
 *   - int64: Mining time in milliseconds
 *   - error: Empty chain, hashing or index failure
 */
func (bc *Blockchain) AddBlock(data string) (Block, int64, error) {
	return bc.AddBlockContext(context.Background(), data)
}

// AddBlockContext is AddBlock with a cancellable search. Nothing is appended
// when ctx ends before a nonce is found.
func (bc *Blockchain) AddBlockContext(ctx context.Context, data string) (Block, int64, error) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if len(bc.blocks) == 0 {
		return Block{}, 0, NewError(ErrorTypeEmptyChain, "blockchain has no blocks, call Init first")
	}
	lastBlock := bc.blocks[len(bc.blocks)-1]

	newBlock := NewBlock(uint64(len(bc.blocks)), nowMillis(), data, lastBlock.Hash)
	newBlock.Algorithm = bc.algorithm

	miningTime, err := newBlock.MineBlockContext(ctx, bc.difficulty)
	if err != nil {
		return Block{}, 0, err
	}
	if err := bc.indexBlock(newBlock); err != nil {
		return Block{}, 0, err
	}

	bc.miningTimes = append(bc.miningTimes, miningTime)
	bc.blocks = append(bc.blocks, newBlock)
	observeMining("append", miningTime)
	chainLengthGauge.Set(float64(len(bc.blocks)))

	return *newBlock, miningTime, nil
}

/**
 * IsChainValid checks that every block from index 1 links to the hash of its
 * predecessor and stops at the first broken link.
 * It does not recompute block hashes: a tampered block whose link is intact
 * is still reported valid. ValidateFull also checks content.
 */
func (bc *Blockchain) IsChainValid() ValidationResult {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	for i := 1; i < len(bc.blocks); i++ {
		if bc.blocks[i].PreviousHash != bc.blocks[i-1].Hash {
			observeValidation("link", false)
			return ValidationResult{Valid: false, InvalidIndex: i, Reason: ReasonBrokenLink}
		}
	}
	observeValidation("link", true)
	return ValidationResult{Valid: true, InvalidIndex: -1}
}

// ValidateFull walks the chain from genesis and reports the first block whose
// stored hash does not match its content or whose link is broken.
func (bc *Blockchain) ValidateFull() ValidationResult {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	for i, block := range bc.blocks {
		if !block.IsHashConsistent() {
			observeValidation("full", false)
			return ValidationResult{Valid: false, InvalidIndex: i, Reason: ReasonHashMismatch}
		}
		if i > 0 && block.PreviousHash != bc.blocks[i-1].Hash {
			observeValidation("full", false)
			return ValidationResult{Valid: false, InvalidIndex: i, Reason: ReasonBrokenLink}
		}
	}
	observeValidation("full", true)
	return ValidationResult{Valid: true, InvalidIndex: -1}
}

// UpdateDifficulty sets the difficulty for future mining. Blocks already
// mined are unaffected and no bounds are enforced here.
func (bc *Blockchain) UpdateDifficulty(difficulty int) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	bc.difficulty = difficulty
	difficultyGauge.Set(float64(difficulty))
	utils.LogInfo("Difficulty updated to %d", difficulty)
}

// UpdateDifficultyString parses value with ParseDifficulty and applies it.
func (bc *Blockchain) UpdateDifficultyString(value string) error {
	difficulty, err := ParseDifficulty(value)
	if err != nil {
		return err
	}
	bc.UpdateDifficulty(difficulty)
	return nil
}

// ParseDifficulty reads the leading integer of value, ignoring surrounding
// whitespace and trailing non-digits ("3", " 4 ", "5 zeros").
func ParseDifficulty(value string) (int, error) {
	s := strings.TrimLeftFunc(value, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	difficulty, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, NewErrorf(ErrorTypeInvalidDifficulty, "invalid difficulty %q", value).Wrap(err)
	}
	return difficulty, nil
}

// GetDifficulty returns the current mining difficulty.
func (bc *Blockchain) GetDifficulty() int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.difficulty
}

// GetAverageMiningTime returns the rounded mean of the AddBlock durations, 0 when none.
func (bc *Blockchain) GetAverageMiningTime() int64 {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.averageMiningTimeLocked()
}

func (bc *Blockchain) averageMiningTimeLocked() int64 {
	if len(bc.miningTimes) == 0 {
		return 0
	}
	var sum int64
	for _, t := range bc.miningTimes {
		sum += t
	}
	return int64(math.Round(float64(sum) / float64(len(bc.miningTimes))))
}

// GetLastMiningTime returns the most recent AddBlock duration, 0 when none.
func (bc *Blockchain) GetLastMiningTime() int64 {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if len(bc.miningTimes) == 0 {
		return 0
	}
	return bc.miningTimes[len(bc.miningTimes)-1]
}

// GetMiningTimes returns a copy of the duration history.
func (bc *Blockchain) GetMiningTimes() []int64 {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return append([]int64(nil), bc.miningTimes...)
}

/**
 * TamperBlock overwrites the data of block index without touching its hash
 * or nonce, leaving the block inconsistent on purpose.
 * Genesis (index 0) and out-of-range indexes are refused.
 *
 * Returns:
 *   - bool: True if the block was modified
 */
func (bc *Blockchain) TamperBlock(index int, data string) bool {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if index <= 0 || index >= len(bc.blocks) {
		return false
	}
	utils.LogInfo("Tampering block %d: changing data to %q", index, data)
	bc.blocks[index].Data = data
	tamperEventsTotal.Inc()

	if err := bc.indexBlock(bc.blocks[index]); err != nil {
		utils.LogError("Failed to index tampered block %d: %v", index, err)
	}
	return true
}

/**
 * RemineBlock relinks block index to its predecessor's current hash, resets
 * its nonce and mines it again at the current difficulty. Later blocks are
 * not touched, so block index+1 is left pointing at the old hash; see RemineFrom.
 *
 * Returns:
 *   - int64: Mining time in ms, 0 for genesis or an out-of-range index
 */
func (bc *Blockchain) RemineBlock(index int) int64 {
	miningTime, err := bc.RemineBlockContext(context.Background(), index)
	if err != nil && !IsErrorType(err, ErrorTypeIndexOutOfRange) {
		utils.LogError("Re-mining block %d failed: %v", index, err)
	}
	return miningTime
}

// RemineBlockContext is RemineBlock with a cancellable search. Out-of-range
// indexes return 0 and an INDEX_OUT_OF_RANGE error.
func (bc *Blockchain) RemineBlockContext(ctx context.Context, index int) (int64, error) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	return bc.remineLocked(ctx, index)
}

func (bc *Blockchain) remineLocked(ctx context.Context, index int) (int64, error) {
	if index <= 0 || index >= len(bc.blocks) {
		return 0, NewErrorf(ErrorTypeIndexOutOfRange, "cannot re-mine block %d of %d", index, len(bc.blocks)).WithIndex(index)
	}
	remined, miningTime, err := bc.remineCopy(ctx, bc.blocks[index], bc.blocks[index-1].Hash)
	if err != nil {
		return 0, err
	}
	bc.commitRemined(index, remined)
	return miningTime, nil
}

// remineCopy mines a copy of block linked to previousHash. The live block is
// left untouched so a cancelled search changes nothing.
func (bc *Blockchain) remineCopy(ctx context.Context, block *Block, previousHash string) (*Block, int64, error) {
	nb := *block
	nb.PreviousHash = previousHash
	nb.Nonce = 0

	miningTime, err := nb.MineBlockContext(ctx, bc.difficulty)
	if err != nil {
		return nil, 0, err
	}
	observeMining("remine", miningTime)
	return &nb, miningTime, nil
}

func (bc *Blockchain) commitRemined(index int, remined *Block) {
	*bc.blocks[index] = *remined
	if err := bc.indexBlock(bc.blocks[index]); err != nil {
		utils.LogError("Failed to index re-mined block %d: %v", index, err)
	}
}

// RemineFrom re-mines block index and every later block in ascending order,
// which restores link validity after a tamper. It returns the total mining
// time. The blocks are replaced only once every search has succeeded.
func (bc *Blockchain) RemineFrom(ctx context.Context, index int) (int64, error) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if index <= 0 || index >= len(bc.blocks) {
		return 0, NewErrorf(ErrorTypeIndexOutOfRange, "cannot re-mine from block %d of %d", index, len(bc.blocks)).WithIndex(index)
	}

	staged := make([]*Block, 0, len(bc.blocks)-index)
	previousHash := bc.blocks[index-1].Hash
	var total int64
	for i := index; i < len(bc.blocks); i++ {
		remined, miningTime, err := bc.remineCopy(ctx, bc.blocks[i], previousHash)
		if err != nil {
			return 0, err
		}
		staged = append(staged, remined)
		previousHash = remined.Hash
		total += miningTime
	}
	for offset, remined := range staged {
		bc.commitRemined(index+offset, remined)
	}
	utils.LogInfo("Re-mined blocks %d..%d in %dms", index, len(bc.blocks)-1, total)
	return total, nil
}

// Reset discards all blocks and mining history and mines a new genesis block.
// Difficulty and hash algorithm are kept.
func (bc *Blockchain) Reset() error {
	return bc.ResetContext(context.Background())
}

// ResetContext is Reset with a cancellable genesis search. The current chain
// is kept when the search is cancelled.
func (bc *Blockchain) ResetContext(ctx context.Context) error {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	genesis, err := bc.mineGenesis(ctx)
	if err != nil {
		return err
	}
	if bc.index != nil {
		if err := bc.index.Clear(); err != nil {
			return err
		}
		if err := bc.index.SaveBlock(genesis); err != nil {
			return err
		}
	}

	bc.blocks = []*Block{genesis}
	bc.miningTimes = make([]int64, 0)
	chainLengthGauge.Set(1)
	utils.LogInfo("Chain %s reset with genesis %s", bc.id, utils.ShortHash(genesis.Hash))
	return nil
}

/**
 * GetLength returns the number of blocks in the blockchain.
 *
 * Returns:
 *   - int: Length of the blockchain
 */
func (bc *Blockchain) GetLength() int {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return len(bc.blocks)
}

// GetBlocks returns copies of all blocks in order.
func (bc *Blockchain) GetBlocks() []Block {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	blocks := make([]Block, len(bc.blocks))
	for i, b := range bc.blocks {
		blocks[i] = *b
	}
	return blocks
}

// GetBlock returns a copy of the block at index.
func (bc *Blockchain) GetBlock(index int) (Block, bool) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	if index < 0 || index >= len(bc.blocks) {
		return Block{}, false
	}
	return *bc.blocks[index], true
}

// FindBlockByHash looks a block up through the index when one is attached,
// falling back to a scan of the chain.
func (bc *Blockchain) FindBlockByHash(hash string) (Block, error) {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	if bc.index != nil {
		block, err := bc.index.GetBlockByHash(hash)
		if err != nil {
			return Block{}, err
		}
		return *block, nil
	}
	for _, b := range bc.blocks {
		if b.Hash == hash {
			return *b, nil
		}
	}
	return Block{}, NewErrorf(ErrorTypeIndexOutOfRange, "block with hash %s not found", hash)
}

// Stats returns a summary of the chain.
func (bc *Blockchain) Stats() ChainStats {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	var last int64
	if n := len(bc.miningTimes); n > 0 {
		last = bc.miningTimes[n-1]
	}
	return ChainStats{
		ChainID:           bc.id,
		Blocks:            len(bc.blocks),
		Difficulty:        bc.difficulty,
		Algorithm:         bc.algorithm,
		MinedBlocks:       len(bc.miningTimes),
		AverageMiningTime: bc.averageMiningTimeLocked(),
		LastMiningTime:    last,
	}
}
