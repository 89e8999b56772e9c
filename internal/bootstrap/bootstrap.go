// Package bootstrap assembles the stores and services shared by the API,
// the worker and the admin CLI from one Config.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tasvir/internal/adapter/memory"
	"tasvir/internal/adapter/repo"
	"tasvir/internal/billing"
	"tasvir/internal/credits"
	"tasvir/internal/discount"
	"tasvir/internal/domain"
	"tasvir/internal/generation"
	"tasvir/internal/infra"
	"tasvir/internal/infra/credentials"
	"tasvir/internal/providers/kie"
	"tasvir/internal/providers/sms"
)

// UserStore is the user document store: profile, histories and credits.
type UserStore interface {
	domain.UserRepository
	domain.CreditRepository
}

// Deps holds the wired components. Redis and Credentials are nil when not
// configured.
type Deps struct {
	Config      *infra.Config
	Logger      infra.Logger
	Tasks       domain.TaskRepository
	Users       UserStore
	Discounts   domain.DiscountRepository
	Credentials *credentials.Store
	Redis       *redis.Client
	Ledger      *credits.Ledger
	Generation  *generation.Service
	DiscountSvc *discount.Service
	Billing     *billing.Service
	SMS         sms.Sender
	// Checks pings each configured backing service, keyed by name.
	Checks map[string]func(context.Context) error

	closers []func()
}

// Build connects the configured store driver and Redis and wires services.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger, Checks: map[string]func(context.Context) error{}}
	if err := d.openStores(ctx); err != nil {
		d.Close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = client
		d.closers = append(d.closers, func() { _ = client.Close() })
		d.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	kieKey, smsKey := cfg.KieAPIKey, cfg.SMSAPIKey
	if d.Credentials != nil {
		var err error
		if kieKey, err = d.Credentials.Resolve(ctx, credentials.ProviderKie, kieKey); err != nil {
			logger.Warn().Err(err).Msg("bootstrap: load kie key failed")
		}
		if smsKey, err = d.Credentials.Resolve(ctx, credentials.ProviderSMS, smsKey); err != nil {
			logger.Warn().Err(err).Msg("bootstrap: load sms key failed")
		}
	}

	provider, err := kie.NewClient(kie.Options{
		APIKey:     kieKey,
		BaseURL:    cfg.KieBaseURL,
		ImageSize:  cfg.KieImageSize,
		VideoModel: cfg.KieVideoModel,
		Logger:     &d.Logger,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	if !provider.HasCredentials() {
		logger.Warn().Msg("bootstrap: KIE_API_KEY not set, submissions will fail")
	}

	d.Ledger = credits.NewLedger(d.Users)
	d.Generation, err = generation.NewService(generation.Options{
		Tasks:          d.Tasks,
		Credits:        d.Ledger,
		History:        d.Users,
		Provider:       provider,
		Logger:         &d.Logger,
		CallbackBase:   cfg.PublicBaseURL,
		CallbackSecret: cfg.CallbackSecret,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	d.DiscountSvc = discount.NewService(d.Discounts)
	d.Billing, err = billing.NewService(d.DiscountSvc, d.Ledger, d.Users, cfg.SnowflakeNode)
	if err != nil {
		d.Close()
		return nil, err
	}

	if smsKey != "" {
		client, err := sms.NewClient(sms.Options{APIKey: smsKey, Template: cfg.SMSTemplate, Logger: &d.Logger})
		if err != nil {
			d.Close()
			return nil, err
		}
		d.SMS = client
	} else {
		d.SMS = sms.NewLogSender(&d.Logger)
	}
	return d, nil
}

func (d *Deps) openStores(ctx context.Context) error {
	switch d.Config.StoreDriver {
	case infra.StoreDriverMemory:
		d.Tasks = memory.NewTaskStore()
		d.Users = memory.NewUserStore()
		d.Discounts = memory.NewDiscountStore()
		d.Logger.Warn().Msg("bootstrap: using in-memory store, data is lost on exit")
		return nil
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, d.Config)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, pool.Close)
		d.Checks["postgres"] = pool.Ping
		runner := infra.NewSQLRunner(pool, d.Logger)
		d.Tasks = repo.NewTaskRepository(runner)
		d.Users = repo.NewUserRepository(runner)
		d.Discounts = repo.NewDiscountRepository(runner)
		d.Credentials = credentials.NewStore(runner)
		return nil
	default:
		return fmt.Errorf("unsupported store driver %q", d.Config.StoreDriver)
	}
}

// Close releases connections in reverse order of opening.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
