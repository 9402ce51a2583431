package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/slog"

	"github.com/holdemlabs/holdemd/pkg/server"
)

func main() {
	cfg := server.DefaultConfig().FromEnv()

	var tables int
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	flag.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "Path to the sqlite ledger (created if missing)")
	flag.StringVar(&cfg.DebugLevel, "debuglevel", cfg.DebugLevel, "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&tables, "tables", 1, "Number of tables to open at startup")
	mock := flag.Bool("mockauth", false, "Accept mock:<id>:<name> tickets instead of Steam auth")
	flag.Parse()

	backend := slog.NewBackend(os.Stdout)
	log := backend.Logger("SRVR")
	if level, ok := slog.LevelFromString(cfg.DebugLevel); ok {
		log.SetLevel(level)
	}

	ledger, err := server.NewLedger(cfg.DatabaseURL, cfg.DefaultBuyIn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer ledger.Close()

	var verifier server.IdentityVerifier
	if *mock || cfg.SteamAPIKey == "" {
		if !*mock {
			log.Warnf("no Steam API key configured, falling back to mock auth")
		}
		verifier = server.MockVerifier{}
	} else {
		verifier = &server.SteamVerifier{APIKey: cfg.SteamAPIKey, AppID: cfg.SteamAppID}
	}

	srv := server.NewServer(log, cfg, ledger, verifier)
	for i := 0; i < tables; i++ {
		srv.Registry().CreateTable(server.TableOptions{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		os.Exit(1)
	}
}
