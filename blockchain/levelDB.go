package blockchain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// Database keys prefixes for better organization
const (
	blockIndexKeyPrefix = "blockindex_" // Prefix for accessing blocks by index
	blockHashKeyPrefix  = "blockhash_"  // Prefix for accessing blocks by hash
	blockHeightKey      = "height"      // Key for the number of indexed blocks
)

// BlockIndex keeps a lookup table of the chain's blocks by index and by hash.
// It is backed by an in-memory LevelDB storage and is gone when the process exits.
type BlockIndex struct {
	db        *leveldb.DB
	batchLock sync.Mutex
}

// NewBlockIndex opens an empty in-memory index.
func NewBlockIndex() (*BlockIndex, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open block index: %w", err)
	}
	utils.LogDebug("In-memory block index opened")
	return &BlockIndex{db: db}, nil
}

// Close closes the database connection
func (bi *BlockIndex) Close() error {
	if bi.db != nil {
		return bi.db.Close()
	}
	return nil
}

func indexKey(index uint64) []byte {
	return []byte(blockIndexKeyPrefix + strconv.FormatUint(index, 10))
}

func hashKey(hash string) []byte {
	return []byte(blockHashKeyPrefix + hash)
}

// SaveBlock stores a block under its index and hash. If a different hash was
// indexed for the same position before (the block was re-mined), the stale
// hash entry is removed in the same batch.
func (bi *BlockIndex) SaveBlock(block *Block) error {
	blockData, err := json.Marshal(block)
	if err != nil {
		return NewError(ErrorTypeStore, "failed to marshal block").WithIndex(int(block.Index)).Wrap(err)
	}

	bi.batchLock.Lock()
	defer bi.batchLock.Unlock()

	batch := new(leveldb.Batch)

	if previous, err := bi.getByKey(indexKey(block.Index)); err == nil && previous.Hash != block.Hash {
		batch.Delete(hashKey(previous.Hash))
	}

	batch.Put(indexKey(block.Index), blockData)
	if block.Hash != "" {
		batch.Put(hashKey(block.Hash), blockData)
	}

	height, err := bi.Height()
	if err != nil || block.Index+1 > height {
		batch.Put([]byte(blockHeightKey), []byte(strconv.FormatUint(block.Index+1, 10)))
	}

	if err := bi.db.Write(batch, nil); err != nil {
		return NewError(ErrorTypeStore, "failed to write block to index").WithIndex(int(block.Index)).Wrap(err)
	}

	utils.LogDebug("Block %d indexed with hash %s", block.Index, utils.ShortHash(block.Hash))
	return nil
}

func (bi *BlockIndex) getByKey(key []byte) (*Block, error) {
	data, err := bi.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block: %w", err)
	}
	return &block, nil
}

// GetBlockByIndex retrieves a block by its index
func (bi *BlockIndex) GetBlockByIndex(index uint64) (*Block, error) {
	block, err := bi.getByKey(indexKey(index))
	if err == leveldb.ErrNotFound {
		return nil, NewErrorf(ErrorTypeIndexOutOfRange, "block with index %d not indexed", index).WithIndex(int(index))
	}
	if err != nil {
		return nil, NewError(ErrorTypeStore, "failed to retrieve block").WithIndex(int(index)).Wrap(err)
	}
	return block, nil
}

// GetBlockByHash retrieves a block by its hash
func (bi *BlockIndex) GetBlockByHash(hash string) (*Block, error) {
	block, err := bi.getByKey(hashKey(hash))
	if err == leveldb.ErrNotFound {
		return nil, NewErrorf(ErrorTypeIndexOutOfRange, "block with hash %s not found", hash)
	}
	if err != nil {
		return nil, NewError(ErrorTypeStore, "failed to retrieve block").Wrap(err)
	}
	return block, nil
}

// Height returns the number of indexed positions
func (bi *BlockIndex) Height() (uint64, error) {
	data, err := bi.db.Get([]byte(blockHeightKey), nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve index height: %w", err)
	}
	height, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse index height: %w", err)
	}
	return height, nil
}

// Clear removes every entry, used when the chain is reset.
func (bi *BlockIndex) Clear() error {
	bi.batchLock.Lock()
	defer bi.batchLock.Unlock()

	batch := new(leveldb.Batch)
	iter := bi.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return NewError(ErrorTypeStore, "error iterating block index").Wrap(err)
	}

	if err := bi.db.Write(batch, nil); err != nil {
		return NewError(ErrorTypeStore, "failed to clear block index").Wrap(err)
	}
	utils.LogDebug("Block index cleared (%d keys)", batch.Len())
	return nil
}
