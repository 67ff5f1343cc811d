package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DiademGraceArroz/blockchain-demo/api"
	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/config"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger(false, true)
	m.Run()
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	chain := blockchain.NewBlockchain(blockchain.WithDifficulty(1))
	if err := chain.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg := config.Default()
	cfg.AllowedDifficulties = []int{1, 2}

	s := api.NewServer(chain, cfg)
	s.SetupRoutes()
	return s
}

func doRequest(t *testing.T, s *api.Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(body); err != nil {
				t.Fatalf("Failed to marshal payload: %v", err)
			}
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestPingHandler(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "GET", "/ping", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Errorf("got %d %q, want 200 \"pong\"", rr.Code, rr.Body.String())
	}
}

func TestChainHandler_Genesis(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "GET", "/chain", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var snap api.ChainSnapshot
	decode(t, rr, &snap)
	if len(snap.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(snap.Blocks))
	}
	if snap.Blocks[0].Data != blockchain.GenesisData || snap.Blocks[0].PreviousHash != blockchain.RootHash {
		t.Errorf("unexpected genesis block: %+v", snap.Blocks[0])
	}
	if !snap.Validation.Valid || snap.Validation.InvalidIndex != -1 {
		t.Errorf("fresh chain should be valid, got %+v", snap.Validation)
	}
	if snap.Stats.Blocks != 1 || snap.Stats.Difficulty != 1 {
		t.Errorf("unexpected stats: %+v", snap.Stats)
	}
}

func TestMineBlockHandler(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "Alice pays Bob 10 BTC"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v (%s)", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp api.MinedBlockResponse
	decode(t, rr, &resp)
	if resp.Block.Index != 1 || resp.Block.Data != "Alice pays Bob 10 BTC" {
		t.Errorf("unexpected block: %+v", resp.Block)
	}
	if !strings.HasPrefix(resp.Block.Hash, "0") {
		t.Errorf("hash %s does not meet difficulty 1", resp.Block.Hash)
	}
	if !resp.Block.LinkValid || !resp.Block.HashValid {
		t.Errorf("freshly mined block should be valid: %+v", resp.Block)
	}
	if s.Chain.GetLength() != 2 {
		t.Errorf("chain length = %d, want 2", s.Chain.GetLength())
	}
}

func TestMineBlockHandler_BlankDataBecomesEmptyBlock(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "   "})
	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", rr.Code)
	}
	var resp api.MinedBlockResponse
	decode(t, rr, &resp)
	if resp.Block.Data != blockchain.EmptyBlockData {
		t.Errorf("data = %q, want %q", resp.Block.Data, blockchain.EmptyBlockData)
	}
}

func TestMineBlockHandler_InvalidBody(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "POST", "/blocks", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rr.Code)
	}
	if s.Chain.GetLength() != 1 {
		t.Errorf("chain should be unchanged, length %d", s.Chain.GetLength())
	}
}

func TestMineBlockHandler_Timeout(t *testing.T) {
	s := newTestServer(t)
	s.Config.MiningTimeout = 5 * time.Millisecond
	s.Chain.UpdateDifficulty(64)

	rr := doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "never mined"})
	if rr.Code != http.StatusRequestTimeout {
		t.Fatalf("got status %d, want 408 (%s)", rr.Code, rr.Body.String())
	}
	var resp api.ErrorResponse
	decode(t, rr, &resp)
	if resp.Type != string(blockchain.ErrorTypeMiningCancelled) {
		t.Errorf("error type = %q, want %q", resp.Type, blockchain.ErrorTypeMiningCancelled)
	}
	if s.Chain.GetLength() != 1 {
		t.Errorf("cancelled mining must not append, length %d", s.Chain.GetLength())
	}
}

func TestAutoMineHandler(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "POST", "/blocks/auto", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201 (%s)", rr.Code, rr.Body.String())
	}

	var mined []api.MinedBlockResponse
	decode(t, rr, &mined)
	if len(mined) != len(blockchain.AutoMineTransactions) {
		t.Fatalf("mined %d blocks, want %d", len(mined), len(blockchain.AutoMineTransactions))
	}
	for i, m := range mined {
		if m.Block.Data != blockchain.AutoMineTransactions[i] {
			t.Errorf("block %d data = %q, want %q", i+1, m.Block.Data, blockchain.AutoMineTransactions[i])
		}
	}
	if got := s.Chain.GetLength(); got != 1+len(blockchain.AutoMineTransactions) {
		t.Errorf("chain length = %d", got)
	}
	if !s.Chain.IsChainValid().Valid {
		t.Error("chain should be valid after auto mine")
	}
}

func TestTamperAndRemineFlow(t *testing.T) {
	s := newTestServer(t)
	for _, data := range []string{"A", "B", "C"} {
		if rr := doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: data}); rr.Code != http.StatusCreated {
			t.Fatalf("mining %s failed: %d", data, rr.Code)
		}
	}

	rr := doRequest(t, s, "POST", "/blocks/1/tamper", api.RequestBodyForData{Data: "Hacked"})
	if rr.Code != http.StatusOK {
		t.Fatalf("tamper returned %d (%s)", rr.Code, rr.Body.String())
	}
	var tampered api.BlockView
	decode(t, rr, &tampered)
	if tampered.Data != "Hacked" || tampered.HashValid {
		t.Errorf("tampered block should carry new data and a stale hash: %+v", tampered)
	}

	// Link-only validation still passes after a tamper.
	var result blockchain.ValidationResult
	decode(t, doRequest(t, s, "GET", "/chain/validate", nil), &result)
	if !result.Valid {
		t.Errorf("link validation should pass after tamper, got %+v", result)
	}
	decode(t, doRequest(t, s, "GET", "/chain/validate?mode=full", nil), &result)
	if result.Valid || result.InvalidIndex != 1 || result.Reason != blockchain.ReasonHashMismatch {
		t.Errorf("full validation should flag block 1, got %+v", result)
	}

	rr = doRequest(t, s, "POST", "/blocks/1/remine?cascade=false", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remine returned %d (%s)", rr.Code, rr.Body.String())
	}
	var remined api.RemineResponse
	decode(t, rr, &remined)
	if remined.Cascade || remined.Validation.Valid || remined.Validation.InvalidIndex != 2 {
		t.Errorf("single remine should break the link at block 2, got %+v", remined)
	}

	rr = doRequest(t, s, "POST", "/blocks/2/remine", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cascade remine returned %d", rr.Code)
	}
	decode(t, rr, &remined)
	if !remined.Cascade || !remined.Validation.Valid {
		t.Errorf("cascade remine should restore validity, got %+v", remined)
	}
	if !s.Chain.ValidateFull().Valid {
		t.Errorf("full validation should pass after re-mining, got %+v", s.Chain.ValidateFull())
	}
}

func TestTamperHandler_Refused(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/blocks/0/tamper", "/blocks/5/tamper"} {
		rr := doRequest(t, s, "POST", path, api.RequestBodyForData{Data: "x"})
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: got status %d, want 404", path, rr.Code)
		}
	}
	if s.Chain.GetBlocks()[0].Data != blockchain.GenesisData {
		t.Error("genesis must not be tampered")
	}
}

func TestRemineHandler_OutOfRange(t *testing.T) {
	s := newTestServer(t)
	rr := doRequest(t, s, "POST", "/blocks/3/remine", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rr.Code)
	}
}

func TestBlockHandlers(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "lookup me"})
	block, _ := s.Chain.GetBlock(1)

	rr := doRequest(t, s, "GET", "/blocks/1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /blocks/1 returned %d", rr.Code)
	}
	var view api.BlockView
	decode(t, rr, &view)
	if view.Hash != block.Hash {
		t.Errorf("hash = %s, want %s", view.Hash, block.Hash)
	}

	rr = doRequest(t, s, "GET", "/blocks/hash/"+block.Hash, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET by hash returned %d", rr.Code)
	}
	decode(t, rr, &view)
	if view.Index != 1 || view.Data != "lookup me" {
		t.Errorf("unexpected block by hash: %+v", view)
	}

	if rr := doRequest(t, s, "GET", "/blocks/42", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing index: got %d, want 404", rr.Code)
	}
	if rr := doRequest(t, s, "GET", "/blocks/hash/deadbeef", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing hash: got %d, want 404", rr.Code)
	}
}

func TestListBlocksHandler_Filter(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks/auto", nil)

	rr := doRequest(t, s, "GET", "/blocks?where="+`data+%3D~+%22%5EBob%22`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("filter returned %d (%s)", rr.Code, rr.Body.String())
	}
	var views []api.BlockView
	decode(t, rr, &views)
	if len(views) != 1 || views[0].Data != blockchain.AutoMineTransactions[0] {
		t.Errorf("unexpected filter result: %+v", views)
	}

	decode(t, doRequest(t, s, "GET", "/blocks", nil), &views)
	if len(views) != 1+len(blockchain.AutoMineTransactions) {
		t.Errorf("unfiltered list has %d blocks", len(views))
	}

	if rr := doRequest(t, s, "GET", "/blocks?where=index+%3E", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid filter: got %d, want 400", rr.Code)
	}
}

func TestValidateHandler_UnknownMode(t *testing.T) {
	s := newTestServer(t)
	if rr := doRequest(t, s, "GET", "/chain/validate?mode=deep", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestDifficultyHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDiff   int
	}{
		{"number", `{"difficulty": 2}`, http.StatusOK, 2},
		{"string", `{"difficulty": "2"}`, http.StatusOK, 2},
		{"leading integer", `{"difficulty": " 2 zeros"}`, http.StatusOK, 2},
		{"not on menu", `{"difficulty": 4}`, http.StatusBadRequest, 1},
		{"not a number", `{"difficulty": "abc"}`, http.StatusBadRequest, 1},
		{"missing", `{}`, http.StatusBadRequest, 1},
		{"bad json", `{`, http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rr := doRequest(t, s, "PUT", "/difficulty", tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := s.Chain.GetDifficulty(); got != tt.wantDiff {
				t.Errorf("difficulty = %d, want %d", got, tt.wantDiff)
			}
		})
	}
}

func TestResetHandler(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks/auto", nil)
	doRequest(t, s, "PUT", "/difficulty", `{"difficulty": 2}`)

	rr := doRequest(t, s, "POST", "/reset", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset returned %d", rr.Code)
	}
	var snap api.ChainSnapshot
	decode(t, rr, &snap)
	if len(snap.Blocks) != 1 || snap.Stats.MinedBlocks != 0 {
		t.Errorf("reset should leave only genesis, got %d blocks and %d mined", len(snap.Blocks), snap.Stats.MinedBlocks)
	}
	if snap.Stats.Difficulty != 2 || !strings.HasPrefix(snap.Blocks[0].Hash, "00") {
		t.Errorf("reset should keep difficulty 2, got %+v", snap.Stats)
	}
}

func TestResetHandler_TimeoutKeepsChain(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "kept"})
	s.Config.MiningTimeout = 5 * time.Millisecond
	s.Chain.UpdateDifficulty(64)

	if rr := doRequest(t, s, "POST", "/reset", nil); rr.Code != http.StatusRequestTimeout {
		t.Fatalf("got status %d, want 408 (%s)", rr.Code, rr.Body.String())
	}
	if s.Chain.GetLength() != 2 {
		t.Fatalf("timed out reset must keep the chain, length %d", s.Chain.GetLength())
	}

	s.Chain.UpdateDifficulty(1)
	if rr := doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "after"}); rr.Code != http.StatusCreated {
		t.Errorf("mining after a timed out reset returned %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "one"})

	var stats blockchain.ChainStats
	decode(t, doRequest(t, s, "GET", "/stats", nil), &stats)
	if stats.Blocks != 2 || stats.MinedBlocks != 1 || stats.ChainID != s.Chain.ID() {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, "POST", "/blocks", api.RequestBodyForData{Data: "counted"})

	rr := doRequest(t, s, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "blockchain_demo_mining_blocks_mined_total") {
		t.Error("metrics output is missing blockchain_demo_mining_blocks_mined_total")
	}
}
