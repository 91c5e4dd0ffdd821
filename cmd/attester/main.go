package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/geanlabs/attester/config"
	"github.com/geanlabs/attester/node"
)

func main() {
	var (
		configPath string
		listenAddr string
		logLevel   string
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Client config file")
	flag.StringVar(&listenAddr, "listen", "", "Gossip listen address, overrides the config")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		cfg.Network.ListenAddrs = []string{listenAddr}
	}
	if cfg.Label != "" {
		logger = logger.With("client", cfg.Label)
	}

	n, err := node.New(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create node: %v\n", err)
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start node: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	logger.Info("attestation client running",
		"round", n.CurrentRound(),
		"peers", n.PeerCount(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	code := 0
	select {
	case <-sigCh:
		logger.Info("shutting down...")
	case err := <-n.Failures():
		logger.Error("round engine failed", "err", err)
		code = 1
	}
	n.Stop()
	os.Exit(code)
}
