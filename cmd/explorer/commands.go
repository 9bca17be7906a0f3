package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/internal/config"
	"github.com/0xmhha/explorer-go/pkg/alert"
	"github.com/0xmhha/explorer-go/pkg/api"
	"github.com/0xmhha/explorer-go/pkg/client"
	"github.com/0xmhha/explorer-go/pkg/params"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/request"
	"github.com/0xmhha/explorer-go/pkg/router"
	"github.com/0xmhha/explorer-go/pkg/search"
)

func newClient(cfg *config.Config, log *zap.Logger) (*client.Client, error) {
	return client.NewClient(&client.Config{
		Timeout:         cfg.QueryNode.Timeout,
		WithCredentials: cfg.QueryNode.WithCredentials,
		RateLimit:       cfg.QueryNode.RateLimit,
		RateBurst:       cfg.QueryNode.RateBurst,
		UserAgent:       cfg.QueryNode.UserAgent,
		Logger:          log,
	})
}

// newController builds a single-session controller. Alerts go to stderr and
// the log.
func newController(cfg *config.Config, log *zap.Logger) (*search.Controller, error) {
	transport, err := newClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create query node client: %w", err)
	}

	alerter := alert.Multi{
		alert.Func(func(_ context.Context, message string) {
			fmt.Fprintln(os.Stderr, message)
		}),
		alert.NewLogAlerter(log),
	}
	return search.New(search.Config{
		QueryNode:        cfg.QueryNode.Endpoint,
		ExternalExplorer: cfg.QueryNode.ExternalExplorer,
		PageSize:         cfg.Pagination.PageSize,
	}, transport, router.New(nil), alerter, log), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a public key, transaction ID, block hash, block height, tip or mempool",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Search query (defaults to the first argument)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page of a public key or mempool listing",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			q := c.String("query")
			if q == "" {
				q = c.Args().First()
			}
			return runSearch(ctx, c, q, int(c.Int("page")))
		},
	}
}

// runSearch searches q and pages forward until page is reached. Cursors are
// only known after each page, so earlier pages are always fetched.
func runSearch(ctx context.Context, c *cli.Command, q string, page int) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctrl, err := newController(cfg, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	view, err := ctrl.Search(ctx, q)
	if err != nil {
		return err
	}
	for view.State.Page < page {
		if !view.ShowNextPage {
			return fmt.Errorf("no page %d: page %d is the last", page, view.State.Page)
		}
		if view, err = ctrl.NextPage(ctx); err != nil {
			return err
		}
	}
	return printJSON(view)
}

func exploreCommand() *cli.Command {
	return &cli.Command{
		Name:      "explore",
		Usage:     "Run an explorer URL query string, e.g. \"public-key=BC1...&page=1\"",
		ArgsUsage: "<params>",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			values, err := url.ParseQuery(strings.TrimPrefix(c.Args().First(), "?"))
			if err != nil {
				return fmt.Errorf("invalid parameters: %w", err)
			}

			ctrl, err := newController(cfg, log)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			view, err := ctrl.HandleParams(ctx, params.FromValues(values))
			if err != nil {
				return err
			}
			return printJSON(view)
		},
	}
}

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Show how a query is classified and which request it produces",
		ArgsUsage: "<query>",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			q := strings.TrimSpace(c.Args().First())
			state := query.NewState(cfg.QueryNode.Endpoint, q)

			out := api.ClassifyResponse{
				Query:        q,
				Kind:         state.Kind,
				ExplorerPath: params.ExplorerPath(state),
			}
			if p, err := params.Encode(state); err == nil {
				out.Params = p
			}
			desc, err := request.NewBuilder(cfg.Pagination.PageSize).Build(state)
			if err == nil {
				out.Request = desc
			}
			if err := printJSON(out); err != nil {
				return err
			}
			if state.Kind == query.KindInvalid {
				return fmt.Errorf("%s", alert.InvalidInputMessage)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the explorer HTTP and WebSocket API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "API server host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "API server port",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			if host := c.String("host"); host != "" {
				cfg.API.Host = host
			}
			if port := int(c.Int("port")); port > 0 {
				cfg.API.Port = port
			}
			return serve(ctx, cfg, log)
		},
	}
}

func apiConfig(cfg *config.Config) *api.Config {
	apiCfg := api.DefaultConfig()
	apiCfg.Host = cfg.API.Host
	apiCfg.Port = cfg.API.Port
	apiCfg.ReadTimeout = cfg.API.ReadTimeout
	apiCfg.WriteTimeout = cfg.API.WriteTimeout
	apiCfg.IdleTimeout = cfg.API.IdleTimeout
	apiCfg.ShutdownTimeout = cfg.API.ShutdownTimeout
	apiCfg.EnableWebSocket = cfg.API.EnableWebSocket
	apiCfg.EnableCORS = cfg.API.EnableCORS
	apiCfg.AllowedOrigins = cfg.API.AllowedOrigins
	apiCfg.EnableRateLimit = cfg.API.RateLimitPerSecond > 0
	apiCfg.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	apiCfg.RateLimitBurst = cfg.API.RateLimitBurst
	apiCfg.SessionTTL = cfg.API.SessionTTL
	apiCfg.SessionCookie = cfg.API.SessionCookie
	apiCfg.QueryNode = cfg.QueryNode.Endpoint
	apiCfg.ExternalExplorer = cfg.QueryNode.ExternalExplorer
	apiCfg.PageSize = cfg.Pagination.PageSize
	return apiCfg
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if !cfg.API.Enabled {
		return fmt.Errorf("API server is disabled (set api.enabled or EXPLORER_API_ENABLED)")
	}

	log.Info("Starting explorer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("query_node", cfg.QueryNode.Endpoint),
		zap.Int("page_size", cfg.Pagination.PageSize),
	)

	server, err := api.NewServer(apiConfig(cfg), log, func() (search.Transport, error) {
		return newClient(cfg, log)
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		server.Close()
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	if err := server.Stop(context.Background()); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
		return err
	}
	log.Info("Explorer stopped")
	return nil
}
