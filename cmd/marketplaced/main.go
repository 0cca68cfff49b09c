// Command marketplaced runs the Human Pages marketplace REST API together
// with its webhook delivery and listing expiry workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/human-pages-ai/humanpages/config"
	"github.com/human-pages-ai/humanpages/container"
	"github.com/human-pages-ai/humanpages/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "marketplaced:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", os.Getenv("HP_CONFIG"), "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address (overrides config)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging)
	config.LoadEnv(log)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if err := cfg.ValidateBackend(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, log, container.Overrides{})
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer c.Close()
	c.Start(ctx)

	hs := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      c.API.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("marketplace api listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "chain", cfg.Chain.Mode)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
