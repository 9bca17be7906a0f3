package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/config"
	"github.com/0xmhha/explorer-go/internal/logger"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	app := &cli.Command{
		Name:  "explorer",
		Usage: "Query DeSo blocks, transactions and public keys through a query node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to configuration file (YAML)",
			},
			&cli.StringFlag{
				Name:  "node",
				Usage: "Query node URL",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (json, console)",
			},
		},
		Commands: []*cli.Command{
			searchCommand(),
			exploreCommand(),
			classifyCommand(),
			serveCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration, applies the global flags and builds the logger
func setup(c *cli.Command) (*config.Config, *zap.Logger, error) {
	if err := loadDotEnv(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if node := c.String("node"); node != "" {
		cfg.QueryNode.Endpoint = node
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format := c.String("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewWithConfig(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(ctx context.Context, c *cli.Command) error {
			fmt.Printf("explorer-go version %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", buildTime)
			return nil
		},
	}
}
