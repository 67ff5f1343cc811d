package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/config"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

// Server represents the HTTP boundary of the demo: it exposes the chain
// operations as JSON endpoints and pushes chain events to websocket clients.
type Server struct {
	Router *mux.Router
	Chain  *blockchain.Blockchain
	Config *config.AppConfig
	Events *EventHub
}

// NewServer creates a new server instance
func NewServer(chain *blockchain.Blockchain, cfg *config.AppConfig) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Server{
		Router: mux.NewRouter(),
		Chain:  chain,
		Config: cfg,
		Events: NewEventHub(),
	}
}

// SetupRoutes configures the API routes
func (s *Server) SetupRoutes() {
	s.Router.HandleFunc("/ping", s.PingHandler).Methods("GET")

	// Chain views
	s.Router.HandleFunc("/chain", s.ChainHandler).Methods("GET")
	s.Router.HandleFunc("/chain/validate", s.ValidateHandler).Methods("GET")
	s.Router.HandleFunc("/stats", s.StatsHandler).Methods("GET")

	// Block endpoints
	s.Router.HandleFunc("/blocks", s.ListBlocksHandler).Methods("GET")
	s.Router.HandleFunc("/blocks", s.MineBlockHandler).Methods("POST")
	s.Router.HandleFunc("/blocks/auto", s.AutoMineHandler).Methods("POST")
	s.Router.HandleFunc("/blocks/hash/{hash}", s.BlockByHashHandler).Methods("GET")
	s.Router.HandleFunc("/blocks/{index:[0-9]+}", s.BlockHandler).Methods("GET")
	s.Router.HandleFunc("/blocks/{index:[0-9]+}/tamper", s.TamperHandler).Methods("POST")
	s.Router.HandleFunc("/blocks/{index:[0-9]+}/remine", s.RemineHandler).Methods("POST")

	// Chain controls
	s.Router.HandleFunc("/difficulty", s.DifficultyHandler).Methods("PUT")
	s.Router.HandleFunc("/reset", s.ResetHandler).Methods("POST")

	// Event feed and metrics
	s.Router.HandleFunc("/ws", s.WebsocketHandler).Methods("GET")
	s.Router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// miningContext bounds a mining request by the configured timeout and by the
// client connection.
func (s *Server) miningContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.Config.MiningTimeout > 0 {
		return context.WithTimeout(r.Context(), s.Config.MiningTimeout)
	}
	return context.WithCancel(r.Context())
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	utils.LogInfo("Server starting on port %d", s.Config.Port)

	srv := &http.Server{
		Handler:     s.Router,
		Addr:        fmt.Sprintf(":%d", s.Config.Port),
		ReadTimeout: 15 * time.Second,
		// Mining requests are bounded by MiningTimeout, not by a write timeout.
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		utils.LogInfo("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Events.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		utils.LogInfo("HTTP server stopped")
		return nil
	}
}
