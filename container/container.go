// Package container assembles the marketplace backend from configuration.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/human-pages-ai/humanpages/api"
	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/config"
	"github.com/human-pages-ai/humanpages/core/hiring"
	"github.com/human-pages-ai/humanpages/services"
	"github.com/human-pages-ai/humanpages/storage/auth"
	"github.com/human-pages-ai/humanpages/storage/marketplace"
	"github.com/human-pages-ai/humanpages/storage/ratelimit"
	"github.com/human-pages-ai/humanpages/webhook"
)

// Overrides replaces collaborators that would otherwise be built from
// configuration. Zero fields keep the configured choice.
type Overrides struct {
	Clock    clock.Clock
	Verifier chain.Verifier
	Notifier webhook.Notifier
	Posts    services.PostFetcher
	TXT      services.TXTResolver
}

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   marketplace.Store
	Service *services.Service
	API     *api.Server

	dispatcher *webhook.HTTPDispatcher
	broker     *webhook.Broker
	redis      *redis.Client
	evm        *chain.EVMVerifier
}

// New creates a new dependency container
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, ov Overrides) (_ *Container, err error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Container{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	clk := ov.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var keys auth.KeyStore
	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := marketplace.NewPGStore(ctx, cfg.Storage.DSN, cfg.Storage.Seed)
		if err != nil {
			return nil, fmt.Errorf("open marketplace store: %w", err)
		}
		c.Store = pg
		if keys, err = auth.NewPGKeyStore(ctx, pg.Pool()); err != nil {
			return nil, fmt.Errorf("open key store: %w", err)
		}
	default:
		mem := marketplace.NewMemoryStore()
		c.Store = mem
		if cfg.Storage.Seed {
			if err := marketplace.Seed(ctx, mem); err != nil {
				return nil, fmt.Errorf("seed marketplace: %w", err)
			}
		}
		keys = auth.NewMemoryKeyStore()
	}

	var (
		codes   auth.CodeStore
		limiter ratelimit.Limiter
	)
	if cfg.Redis.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		codes = auth.NewRedisCodeStore(c.redis, hiring.ActivationCodeTTL)
		limiter = ratelimit.NewRedis(c.redis, clk)
	} else {
		codes = auth.NewMemoryCodeStore(hiring.ActivationCodeTTL, clk)
		limiter = ratelimit.NewMemory(clk)
	}

	verifier := ov.Verifier
	if verifier == nil {
		if verifier, err = c.buildVerifier(ctx); err != nil {
			return nil, err
		}
	}

	notifier := ov.Notifier
	if notifier == nil {
		if notifier, err = c.buildNotifier(); err != nil {
			return nil, err
		}
	}

	posts := ov.Posts
	if posts == nil {
		posts = services.NewHTTPPostFetcher(&http.Client{Timeout: cfg.Trust.PostFetchTimeout}, cfg.Trust.PostMaxBytes)
	}

	c.Service, err = services.New(services.Deps{
		Store:    c.Store,
		Keys:     keys,
		Codes:    codes,
		Limiter:  limiter,
		Verifier: verifier,
		Notifier: notifier,
		Posts:    posts,
		TXT:      ov.TXT,
		QR:       services.NewQRCodeService(),
		Clock:    clk,
		Logger:   log,
	}, services.Options{
		TreasuryAddress: cfg.Treasury.Address,
		TreasuryNetwork: cfg.Treasury.Network,
		TreasuryChainID: cfg.Treasury.ChainID,
		TreasuryToken:   cfg.Treasury.USDC,
		PromoCapacity:   cfg.Trust.PromoCapacity,
	})
	if err != nil {
		return nil, err
	}

	c.API = api.New(c.Service, api.Options{
		AdminKey:       cfg.Server.AdminKey,
		RequestTimeout: cfg.Server.WriteTimeout,
		Logger:         log,
	})
	return c, nil
}

func (c *Container) buildVerifier(ctx context.Context) (chain.Verifier, error) {
	switch c.Config.Chain.Mode {
	case "evm":
		v, err := chain.NewEVMVerifier(ctx, c.Config.Chain.Networks)
		if err != nil {
			return nil, fmt.Errorf("connect chain rpc: %w", err)
		}
		c.evm = v
		return v, nil
	default:
		s := chain.NewStatic()
		s.AcceptAll = hiring.Cents(c.Config.Chain.AcceptAllCents)
		if s.AcceptAll > 0 {
			c.Logger.Warn("static chain verifier accepts every well-formed transaction", "amount_cents", s.AcceptAll)
		}
		return s, nil
	}
}

func (c *Container) buildNotifier() (webhook.Notifier, error) {
	wc := c.Config.Webhooks
	if wc.Mode == "none" {
		return webhook.NopNotifier{}, nil
	}
	c.dispatcher = webhook.NewHTTPDispatcher(webhook.DispatcherConfig{
		Workers:        wc.Workers,
		Attempts:       wc.Attempts,
		AttemptTimeout: wc.AttemptTimeout,
	}, nil, c.Logger)
	if wc.Mode != "queue" {
		return c.dispatcher, nil
	}
	b, err := webhook.DialBroker(wc.Queue, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect webhook broker: %w", err)
	}
	c.broker = b
	return b.Notifier(), nil
}

// Start launches the background workers: webhook delivery, the queue
// consumer and the listing expiry sweeper. They stop when ctx ends.
func (c *Container) Start(ctx context.Context) {
	if c.dispatcher != nil {
		c.dispatcher.Start()
	}
	if c.broker != nil {
		consumer := c.broker.Consumer(c.dispatcher)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.Error("webhook consumer stopped", "error", err)
			}
		}()
	}
	c.Service.StartListingSweeper(ctx, c.Config.Listings.SweepInterval)
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.broker != nil {
		if err := c.broker.Close(); err != nil {
			c.Logger.Warn("close webhook broker", "error", err)
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.evm != nil {
		c.evm.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
}
