package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// RequestBodyForData is the JSON body for mining and tampering.
type RequestBodyForData struct {
	Data string `json:"data"`
}

// RequestBodyForDifficulty accepts the difficulty as a JSON number or string.
type RequestBodyForDifficulty struct {
	Difficulty json.RawMessage `json:"difficulty"`
}

// MinedBlockResponse is returned for every successful mining request.
type MinedBlockResponse struct {
	Block      BlockView `json:"block"`
	MiningTime int64     `json:"miningTime"`
}

// RemineResponse reports a re-mining request.
type RemineResponse struct {
	Index      int                         `json:"index"`
	Cascade    bool                        `json:"cascade"`
	MiningTime int64                       `json:"miningTime"`
	Validation blockchain.ValidationResult `json:"validation"`
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
	Index *int   `json:"index,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeChainError maps a ChainError to an HTTP status.
func writeChainError(w http.ResponseWriter, err error) {
	var ce *blockchain.ChainError
	if !errors.As(err, &ce) {
		utils.LogError("Unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch ce.Type {
	case blockchain.ErrorTypeIndexOutOfRange:
		status = http.StatusNotFound
	case blockchain.ErrorTypeInvalidDifficulty:
		status = http.StatusBadRequest
	case blockchain.ErrorTypeEmptyChain:
		status = http.StatusConflict
	case blockchain.ErrorTypeMiningCancelled:
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		utils.LogError("Chain operation failed: %v", err)
	}

	resp := ErrorResponse{Error: ce.Error(), Type: string(ce.Type)}
	if ce.Index >= 0 {
		index := ce.Index
		resp.Index = &index
	}
	writeJSON(w, status, resp)
}

func pathIndex(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["index"])
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// PingHandler responds to liveness checks.
func (s *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

// ChainHandler returns blocks, link validation and stats in one snapshot.
func (s *Server) ChainHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// ValidateHandler runs link-only validation, or full validation with ?mode=full.
func (s *Server) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "link":
		writeJSON(w, http.StatusOK, s.Chain.IsChainValid())
	case "full":
		writeJSON(w, http.StatusOK, s.Chain.ValidateFull())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown validation mode %q, expected link or full", mode))
	}
}

// StatsHandler returns the chain statistics.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chain.Stats())
}

// ListBlocksHandler returns all blocks, filtered by the ?where expression when given.
func (s *Server) ListBlocksHandler(w http.ResponseWriter, r *http.Request) {
	views := blockViews(s.Chain.GetBlocks())

	expression := strings.TrimSpace(r.URL.Query().Get("where"))
	if expression == "" {
		writeJSON(w, http.StatusOK, views)
		return
	}

	matched, err := filterBlocks(r.Context(), views, expression)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, matched)
}

// BlockHandler returns one block by index.
func (s *Server) BlockHandler(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block index")
		return
	}
	blocks := blockViews(s.Chain.GetBlocks())
	if index >= len(blocks) {
		writeChainError(w, blockchain.NewErrorf(blockchain.ErrorTypeIndexOutOfRange, "block %d does not exist", index).WithIndex(index))
		return
	}
	writeJSON(w, http.StatusOK, blocks[index])
}

// BlockByHashHandler looks a block up by its hash.
func (s *Server) BlockByHashHandler(w http.ResponseWriter, r *http.Request) {
	block, err := s.Chain.FindBlockByHash(mux.Vars(r)["hash"])
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewAt(int(block.Index)))
}

// MineBlockHandler mines a new block. A blank payload becomes "Empty Block".
func (s *Server) MineBlockHandler(w http.ResponseWriter, r *http.Request) {
	var req RequestBodyForData
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	data := strings.TrimSpace(req.Data)
	if data == "" {
		data = blockchain.EmptyBlockData
	}

	ctx, cancel := s.miningContext(r)
	defer cancel()

	resp, err := s.mineOne(ctx, data)
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) mineOne(ctx context.Context, data string) (MinedBlockResponse, error) {
	block, miningTime, err := s.Chain.AddBlockContext(ctx, data)
	if err != nil {
		return MinedBlockResponse{}, err
	}
	s.publish(EventBlockMined, int(block.Index))
	return MinedBlockResponse{
		Block:      s.viewAt(int(block.Index)),
		MiningTime: miningTime,
	}, nil
}

// AutoMineHandler mines the scripted sample transactions one after another.
func (s *Server) AutoMineHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.miningContext(r)
	defer cancel()

	mined := make([]MinedBlockResponse, 0, len(blockchain.AutoMineTransactions))
	for _, data := range blockchain.AutoMineTransactions {
		resp, err := s.mineOne(ctx, data)
		if err != nil {
			utils.LogError("Auto mine stopped after %d blocks: %v", len(mined), err)
			writeChainError(w, err)
			return
		}
		mined = append(mined, resp)
	}
	writeJSON(w, http.StatusCreated, mined)
}

// TamperHandler overwrites a block's data without re-mining it.
func (s *Server) TamperHandler(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block index")
		return
	}
	var req RequestBodyForData
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if !s.Chain.TamperBlock(index, req.Data) {
		writeChainError(w, blockchain.NewErrorf(blockchain.ErrorTypeIndexOutOfRange,
			"block %d cannot be tampered (genesis or out of range)", index).WithIndex(index))
		return
	}
	s.publish(EventBlockTampered, index)

	writeJSON(w, http.StatusOK, s.viewAt(index))
}

// RemineHandler re-mines a block and, unless ?cascade=false, every later block.
func (s *Server) RemineHandler(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid block index")
		return
	}
	cascade := r.URL.Query().Get("cascade") != "false"

	ctx, cancel := s.miningContext(r)
	defer cancel()

	var miningTime int64
	if cascade {
		miningTime, err = s.Chain.RemineFrom(ctx, index)
	} else {
		miningTime, err = s.Chain.RemineBlockContext(ctx, index)
	}
	if err != nil {
		writeChainError(w, err)
		return
	}
	s.publish(EventBlockRemined, index)

	writeJSON(w, http.StatusOK, RemineResponse{
		Index:      index,
		Cascade:    cascade,
		MiningTime: miningTime,
		Validation: s.Chain.IsChainValid(),
	})
}

// DifficultyHandler changes the difficulty to one of the allowed values.
func (s *Server) DifficultyHandler(w http.ResponseWriter, r *http.Request) {
	var req RequestBodyForDifficulty
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	raw := string(req.Difficulty)
	var asString string
	if err := json.Unmarshal(req.Difficulty, &asString); err == nil {
		raw = asString
	}
	difficulty, err := blockchain.ParseDifficulty(raw)
	if err != nil {
		writeChainError(w, err)
		return
	}
	if !s.Config.IsAllowedDifficulty(difficulty) {
		writeChainError(w, blockchain.NewErrorf(blockchain.ErrorTypeInvalidDifficulty,
			"difficulty %d not allowed, choose one of %v", difficulty, s.Config.AllowedDifficulties))
		return
	}

	s.Chain.UpdateDifficulty(difficulty)
	s.publish(EventDifficultyUpdated, -1)
	writeJSON(w, http.StatusOK, map[string]int{"difficulty": difficulty})
}

// ResetHandler discards the chain and mines a new genesis block.
func (s *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.miningContext(r)
	defer cancel()

	if err := s.Chain.ResetContext(ctx); err != nil {
		writeChainError(w, err)
		return
	}
	s.publish(EventChainReset, -1)
	writeJSON(w, http.StatusOK, s.snapshot())
}
