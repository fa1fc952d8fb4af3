package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/docsync/internal/cli"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/replica"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file")
	serverURL := flag.String("server", "", "DataGate URL")
	dbPath := flag.String("db", "", "Path to local database")
	collectionName := flag.String("collection", "", "Collection name")
	token := flag.String("token", "", "DataGate token")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	io := cli.NewIO(os.Stdin, os.Stdout)

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(io)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Флаги имеют приоритет над файлом и окружением
	if *serverURL != "" {
		cfg.Replica.ServerURL = *serverURL
	}
	if *dbPath != "" {
		cfg.Replica.DBPath = *dbPath
		if os.Getenv(config.EnvPrefix+"_REPLICA_NODE_ID") == "" {
			cfg.Replica.NodeID = config.DefaultNodeID(*dbPath)
		}
	}
	if *collectionName != "" {
		cfg.Replica.Collection = *collectionName
	}
	if *token != "" {
		cfg.Replica.Token = *token
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.Log.Level),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := replica.Open(ctx, cfg.Replica, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open replica: %v\n", err)
		os.Exit(1)
	}

	runErr := cli.New(io, node).Run(ctx, args[0], args[1:])

	if err := node.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		if errors.Is(runErr, cli.ErrUnknownCommand) {
			cli.PrintUsage(io)
		}
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("docsync replica\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
