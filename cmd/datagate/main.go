package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/server"
	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file")
	listenAddr := flag.String("addr", "", "Listen address")
	dbPath := flag.String("db", "", "Path to SQLite database")
	issueToken := flag.String("issue-token", "", "Print a token for the given replica id and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Gate.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.Gate.DBPath = *dbPath
	}

	if err := cfg.ValidateGate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	jwtConfig := handlers.JWTConfig{
		Secret:   []byte(cfg.Gate.JWTSecret),
		TokenTTL: cfg.Gate.TokenTTL,
	}

	if *issueToken != "" {
		token, expiresAt, err := handlers.GenerateReplicaToken(jwtConfig, *issueToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.Log.Level),
	}))

	if err := run(cfg, jwtConfig, logger); err != nil {
		logger.Error("DataGate stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, jwtConfig handlers.JWTConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := sqlite.New(ctx, cfg.Gate.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := storage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	srv := server.New(server.Config{
		ListenAddr:       cfg.Gate.ListenAddr,
		Version:          Version,
		JWT:              jwtConfig,
		Gate:             handlers.DefaultGateConfig(),
		ConnectRate:      cfg.Gate.ConnectRate,
		ConnectWindow:    cfg.Gate.ConnectWindow,
		ReceiptRetention: cfg.Gate.ReceiptRetention,
		PruneInterval:    cfg.Gate.PruneInterval,
	}, storage, logger)

	logger.Info("DataGate starting", "version", Version, "db", cfg.Gate.DBPath)
	return srv.Run(ctx)
}

func printVersion() {
	fmt.Printf("docsync DataGate\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
