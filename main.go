// Copyright 2025 Certen Protocol
//
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certenio/ledgerd/pkg/config"
	"github.com/certenio/ledgerd/pkg/engine"
	"github.com/certenio/ledgerd/pkg/kvdb"
	"github.com/certenio/ledgerd/pkg/ledger"
	"github.com/certenio/ledgerd/pkg/mining"
	"github.com/certenio/ledgerd/pkg/server"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		listenAddr = flag.String("listen-address", "", "Network endpoint for the RPC surface (overrides LEDGERD_LISTEN_ADDRESS)")
		dataDir    = flag.String("data-dir", "", "Filesystem path for the KV store (overrides LEDGERD_DATA_DIR)")
		difficulty = flag.Int("default-difficulty", -1, "Difficulty used when a chain is created without an explicit value")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	cfg := config.Load()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *difficulty >= 0 {
		cfg.DefaultDifficulty = *difficulty
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log.Printf("starting ledgerd: listen=%s data_dir=%s backend=%s", cfg.ListenAddr, cfg.DataDir, cfg.KVBackend)

	backend := kvdb.BackendGoLevelDB
	if cfg.KVBackend == "memdb" {
		backend = kvdb.BackendMemDB
	}
	store, err := kvdb.Open(backend, "ledgerd", cfg.DataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open KV store:", err)
		os.Exit(1)
	}
	defer store.Close()

	repo := ledger.New(store)
	pool := mining.NewPool(cfg.BlockingPoolSize)
	eng := engine.New(repo, pool, engine.Config{
		DefaultDifficulty: cfg.DefaultDifficulty,
		MaxPayloadBytes:   cfg.MaxPayloadBytes,
		MaxRangeBlocks:    cfg.MaxRangeBlocks,
		MiningDeadline:    cfg.MiningDeadline,
	})
	if err := eng.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize engine:", err)
		os.Exit(1)
	}

	srv := server.New(eng)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("ledgerd listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down ledgerd...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Printf("ledgerd stopped")
}
