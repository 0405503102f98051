package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"athenascraper/internal/browseruse"
	"athenascraper/internal/cache"
	"athenascraper/internal/config"
	"athenascraper/internal/logging"
	"athenascraper/internal/social"
	transporthttp "athenascraper/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "athena",
		Short:        "Athena Browser-Use Service",
		Long:         "Searches Reddit and Twitter/X for posts about a stock ticker through a browser automation agent.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newScrapeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var (
		platform   string
		start      string
		end        string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "scrape [TICKER]",
		Short: "Run a single scrape and print the JSON response",
		Long: `Run one scrape without starting the server.
Example: athena scrape AAPL --platform both --start 2024-01-01 --end 2024-01-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			scraper, closeCache := buildScraper(ctx, cfg, logger)
			defer closeCache()

			req := social.ScrapeRequest{Ticker: args[0], StartDate: start, EndDate: end, MaxResults: maxResults}

			var resp social.ScrapeResponse
			if platform == "both" {
				resp = scraper.ScrapeBoth(ctx, req)
			} else {
				var p social.Platform
				if p, err = social.ParsePlatform(platform); err != nil {
					return err
				}
				resp, err = scraper.Scrape(ctx, p, req)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	today := time.Now().Format("2006-01-02")
	cmd.Flags().StringVar(&platform, "platform", "both", "reddit, twitter or both")
	cmd.Flags().StringVar(&start, "start", time.Now().AddDate(0, 0, -7).Format("2006-01-02"), "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", today, "end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&maxResults, "max", social.DefaultMaxResults, "maximum posts to request per platform")
	return cmd
}

func bootstrap() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.Init(cfg.LogLevel), nil
}

func buildScraper(ctx context.Context, cfg config.Config, logger *slog.Logger) (social.Scraper, func()) {
	scraper := social.Scraper{
		Model:  cfg.BrowserUseModel,
		Logger: logger,
	}
	closeCache := func() {}

	if cfg.BrowserUseConfigured() {
		scraper.Runner = browseruse.NewClient(cfg.BrowserUseAPIKey,
			browseruse.WithBaseURL(cfg.BrowserUseBaseURL),
			browseruse.WithPollInterval(cfg.PollInterval),
		)
		logger.Info("browser use agent configured", slog.String("model", cfg.BrowserUseModel))
	} else {
		logger.Warn("BROWSER_USE_API_KEY not set, scrape endpoints will fail")
	}

	if cfg.ValkeyAddr != "" {
		store, err := cache.NewValkey(ctx, cache.Options{Addr: cfg.ValkeyAddr, Password: cfg.ValkeyPassword, TTL: cfg.CacheTTL})
		if err != nil {
			logger.Warn("scrape cache disabled", slog.String("error", err.Error()))
		} else {
			scraper.Cache = store
			closeCache = store.Close
		}
	}

	return scraper, closeCache
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	scraper, closeCache := buildScraper(ctx, cfg, logger)
	defer closeCache()

	server := transporthttp.NewServer(scraper, cfg)

	// No write timeout: scrapes block until the agent task finishes.
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening", slog.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
