package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-vault-go/cmd/vaultd/config"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

func main() {
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	rootLogger := slog.New(rootLogHandler)
	close := func() {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := newApp(ctx, cfg, rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize vault node", "error", err)
		close()
	}
	defer node.Close()

	if err := node.serve(ctx, cfg.ListenAddr, prometheus.DefaultGatherer, rootLogger); err != nil {
		rootLogger.Error("Server stopped", "error", err)
		return
	}
	rootLogger.Info("Shut down cleanly", "last_seq", node.bus.Seq())
}

func loadConfig() (*config.VaultConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
