package api

import "github.com/DiademGraceArroz/blockchain-demo/blockchain"

// BlockView is a block plus the per-block checks a client needs to mark it
// as broken: whether it links to its predecessor and whether its stored hash
// still matches its content.
type BlockView struct {
	blockchain.Block
	LinkValid bool `json:"linkValid"`
	HashValid bool `json:"hashValid"`
}

// ChainSnapshot is the full state rendered by a client.
type ChainSnapshot struct {
	Blocks     []BlockView                 `json:"blocks"`
	Validation blockchain.ValidationResult `json:"validation"`
	Stats      blockchain.ChainStats       `json:"stats"`
}

func blockViews(blocks []blockchain.Block) []BlockView {
	views := make([]BlockView, len(blocks))
	for i, b := range blocks {
		linkValid := true
		if i > 0 {
			linkValid = b.PreviousHash == blocks[i-1].Hash
		}
		views[i] = BlockView{
			Block:     b,
			LinkValid: linkValid,
			HashValid: b.IsHashConsistent(),
		}
	}
	return views
}

func (s *Server) snapshot() ChainSnapshot {
	return ChainSnapshot{
		Blocks:     blockViews(s.Chain.GetBlocks()),
		Validation: s.Chain.IsChainValid(),
		Stats:      s.Chain.Stats(),
	}
}

// viewAt returns the view of block index, checked against its predecessor.
func (s *Server) viewAt(index int) BlockView {
	views := blockViews(s.Chain.GetBlocks())
	if index < 0 || index >= len(views) {
		return BlockView{}
	}
	return views[index]
}
