// Command mcpserver exposes the Human Pages hiring protocol to AI agents as
// MCP tools, over stdio or streamable HTTP, backed by the marketplace REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/human-pages-ai/humanpages/client"
	"github.com/human-pages-ai/humanpages/config"
	"github.com/human-pages-ai/humanpages/logger"
	"github.com/human-pages-ai/humanpages/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mcpserver:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", os.Getenv("HP_CONFIG"), "path to a YAML config file")
	transport := pflag.String("transport", "", "stdio or http (overrides config)")
	apiURL := pflag.String("api-url", "", "marketplace REST API base URL (overrides config)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// stdout carries protocol frames in stdio mode.
	cfg.Logging.Output = "stderr"
	log := logger.New(cfg.Logging)
	config.LoadEnv(log)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if *transport != "" {
		cfg.MCP.Transport = *transport
	}
	if *apiURL != "" {
		cfg.MCP.APIURL = *apiURL
	}
	if err := cfg.ValidateMCP(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	api, err := client.New(cfg.MCP.APIURL, client.WithTimeout(cfg.MCP.Timeout))
	if err != nil {
		return err
	}
	srv := mcp.NewServer(api, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("mcp server starting", "transport", cfg.MCP.Transport, "api_url", cfg.MCP.APIURL)
	if cfg.MCP.Transport == "http" {
		return serveHTTP(ctx, log, srv, cfg.MCP.HTTPAddr)
	}
	err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, log *slog.Logger, srv *mcp.Server, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("mcp http listening", "addr", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("mcp http shutting down")
	return hs.Shutdown(shutdownCtx)
}
