package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/launchpad/internal/db"
	"github.com/dmitrymomot/launchpad/pkg/billing"
	"github.com/dmitrymomot/launchpad/pkg/billing/pgstore"
	"github.com/dmitrymomot/launchpad/pkg/clientip"
	"github.com/dmitrymomot/launchpad/pkg/config"
	"github.com/dmitrymomot/launchpad/pkg/environment"
	"github.com/dmitrymomot/launchpad/pkg/httpserver"
	"github.com/dmitrymomot/launchpad/pkg/logger"
	"github.com/dmitrymomot/launchpad/pkg/pg"
	"github.com/dmitrymomot/launchpad/pkg/redis"
	"github.com/dmitrymomot/launchpad/pkg/requestid"
)

const serviceName = "launchpad"

// app holds the infrastructure shared by every command.
type app struct {
	env    environment.Environment
	log    *slog.Logger
	cfg    billing.Config
	store  billing.Store
	pool   *pgxpool.Pool
	redis  *goredis.Client
	health []httpserver.HealthCheck
}

func newLogger() (*slog.Logger, environment.Environment, error) {
	var envCfg environment.Config
	if err := config.Load(&envCfg); err != nil {
		return nil, "", err
	}
	var logCfg logger.Config
	if err := config.Load(&logCfg); err != nil {
		return nil, "", err
	}

	env := environment.Parse(envCfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, serviceName),
		logger.WithConfig(logCfg),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	)
	return log, env, nil
}

// bootstrap loads configuration and opens the store. Redis is optional.
func bootstrap(ctx context.Context) (*app, error) {
	log, env, err := newLogger()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	a := &app{env: env, log: log}
	if err := config.Load(&a.cfg); err != nil {
		return nil, err
	}

	if memoryMode {
		users, err := parseSeedUsers(seedUsers)
		if err != nil {
			return nil, err
		}
		a.store = billing.NewMemoryStore(users...)
		log.WarnContext(ctx, "running against the in-memory store, state is lost on exit", slog.Int("seeded_users", len(users)))
	} else {
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		if err := pg.Migrate(ctx, pool, pgCfg, db.Migrations(), log); err != nil {
			a.close()
			return nil, err
		}
		a.store = pgstore.New(pool)
		a.health = append(a.health, httpserver.HealthCheck{Name: "postgres", Check: pg.Healthcheck(pool)})
	}

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		a.close()
		return nil, err
	}
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		a.health = append(a.health, httpserver.HealthCheck{Name: "redis", Check: redis.Healthcheck(client)})
	}

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("failed to close redis client", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// services is the wired entitlement core.
type services struct {
	provider billing.BillingProvider
	catalog  *billing.CatalogSyncer
	resolver *billing.Resolver
	ledger   *billing.Ledger
	checkout *billing.Checkout
	webhooks *billing.WebhookProcessor
	admin    *billing.Admin
}

func (a *app) services() (*services, error) {
	var stripeCfg billing.StripeConfig
	if err := config.Load(&stripeCfg); err != nil {
		return nil, err
	}
	var paddleCfg billing.PaddleConfig
	if err := config.Load(&paddleCfg); err != nil {
		return nil, err
	}

	provider, err := billing.NewProvider(a.cfg, stripeCfg, paddleCfg)
	if err != nil {
		return nil, err
	}

	var gate billing.SyncGate = billing.NewMemorySyncGate(a.cfg.SyncWindow, nil)
	if a.redis != nil {
		gate = billing.NewRedisSyncGate(a.redis, a.cfg.SyncLockKey, a.cfg.SyncWindow)
	}

	providerLog := a.log.With(logger.Provider(a.cfg.Provider))
	s := &services{provider: provider}
	s.catalog = billing.NewCatalogSyncer(provider, a.store,
		billing.WithSyncGate(gate),
		billing.WithCatalogLogger(providerLog.With(logger.Component("catalog"))),
	)
	s.resolver = billing.NewResolver(provider, a.store,
		billing.WithReconcile(a.cfg.Reconcile),
		billing.WithResolverLogger(providerLog.With(logger.Component("resolver"))),
	)
	s.ledger = billing.NewLedger(a.store, s.resolver,
		billing.WithGrantPeriod(a.cfg.GrantPeriod),
		billing.WithLedgerLogger(a.log.With(logger.Component("ledger"))),
	)
	s.checkout = billing.NewCheckout(provider, provider, a.store,
		billing.WithRedirectURLs(a.cfg.CheckoutSuccessURL(), a.cfg.CheckoutCancelURL()),
		billing.WithCheckoutLogger(providerLog.With(logger.Component("checkout"))),
	)
	s.webhooks = billing.NewWebhookProcessor(provider, a.store, s.ledger, s.catalog,
		billing.WithWebhookLogger(providerLog.With(logger.Component("webhooks"))),
	)
	s.admin = billing.NewAdmin(a.store, s.ledger, s.resolver,
		billing.WithAdminGrantPeriod(a.cfg.GrantPeriod),
	)
	return s, nil
}

// parseSeedUsers reads id[:email[:ROLE]] entries.
func parseSeedUsers(entries []string) ([]billing.User, error) {
	users := make([]billing.User, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		id := strings.TrimSpace(parts[0])
		if id == "" {
			return nil, fmt.Errorf("seed user %q: empty id", entry)
		}
		u := billing.User{ID: id, Role: billing.RoleUser, MembershipStatus: billing.MembershipInactive}
		if len(parts) > 1 {
			u.Email = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			u.Role = billing.Role(strings.ToUpper(strings.TrimSpace(parts[2])))
			if !u.Role.Valid() {
				return nil, errors.Join(billing.ErrInvalidRole, fmt.Errorf("seed user %q", entry))
			}
		}
		users = append(users, u)
	}
	return users, nil
}
