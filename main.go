package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/DiademGraceArroz/blockchain-demo/api"
	"github.com/DiademGraceArroz/blockchain-demo/blockchain"
	"github.com/DiademGraceArroz/blockchain-demo/config"
	"github.com/DiademGraceArroz/blockchain-demo/utils"
)

func main() {
	// 1. Load configuration (.env, config file, environment, flags)
	config.LoadDotEnv()
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	utils.InitLogger(cfg.Verbose, false)
	utils.SetVerbose(cfg.Verbose)
	utils.LogInfo("Application starting...")

	// 2. Build the chain and its lookup index
	index, err := blockchain.NewBlockIndex()
	if err != nil {
		log.Fatalf("Error opening block index: %v", err)
	}
	defer index.Close()

	chain := blockchain.NewBlockchain(
		blockchain.WithDifficulty(cfg.Difficulty),
		blockchain.WithHashAlgorithm(cfg.HashAlgorithm),
		blockchain.WithBlockIndex(index),
	)
	if err := chain.Init(); err != nil {
		log.Fatalf("Error initializing blockchain: %v", err)
	}
	utils.LogInfo("Chain initialized with %d blocks (difficulty %d, %s)", chain.GetLength(), chain.GetDifficulty(), cfg.HashAlgorithm)

	// 3. Either run the console walkthrough or serve the API
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Demo {
		if err := runDemo(appCtx, chain, os.Stdout); err != nil {
			log.Fatalf("Demo failed: %v", err)
		}
		return
	}

	server := api.NewServer(chain, cfg)
	server.SetupRoutes()
	utils.PrintStartupMessage(chain.ID(), cfg.Port, chain.GetDifficulty())

	if err := server.Start(appCtx); err != nil {
		log.Fatalf("HTTP Server failed: %v", err)
	}
	utils.LogInfo("Application shutting down.")
}
