package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/launchpad/modules/billing"
	"github.com/dmitrymomot/launchpad/pkg/clientip"
	"github.com/dmitrymomot/launchpad/pkg/config"
	"github.com/dmitrymomot/launchpad/pkg/environment"
	"github.com/dmitrymomot/launchpad/pkg/httpserver"
	"github.com/dmitrymomot/launchpad/pkg/jwt"
	"github.com/dmitrymomot/launchpad/pkg/logger"
	"github.com/dmitrymomot/launchpad/pkg/requestid"
)

func loadJWT() (*jwt.Service, error) {
	var cfg jwt.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	return jwt.New(cfg)
}

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.services()
	if err != nil {
		return err
	}
	tokens, err := loadJWT()
	if err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	var ipCfg clientip.Config
	if err := config.Load(&ipCfg); err != nil {
		return err
	}

	// Warm the catalog so the first request does not pay for the sync.
	svc.catalog.Sync(ctx, false)

	moduleLog := a.log.With(logger.Component("http"))
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(ipCfg.Headers...))
	r.Use(environment.Middleware(a.env))
	r.Use(tokens.Middleware)

	r.Get("/health", httpserver.HealthHandler(a.log, a.health...))
	r.Get("/health/live", httpserver.HealthHandler(a.log))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Mount("/", billing.Router(billing.RouterOptions{
		Billing: billing.NewService(svc.catalog, svc.ledger, svc.checkout, svc.webhooks, a.store,
			billing.WithLogger(moduleLog),
		),
		Admin: billing.NewAdminService(svc.admin, billing.WithLogger(moduleLog)),
	}))

	a.log.InfoContext(ctx, "starting server",
		logger.Provider(a.cfg.Provider),
		"addr", httpCfg.Addr,
		"memory", memoryMode,
		"version", Version,
	)
	return httpserver.New(httpCfg, httpserver.WithLogger(a.log)).Run(ctx, r)
}

func runSync(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.services()
	if err != nil {
		return err
	}
	if err := svc.catalog.SyncNow(ctx); err != nil {
		return err
	}

	products := svc.catalog.ActiveProducts(ctx, false)
	a.log.InfoContext(ctx, "catalog synced", logger.Provider(a.cfg.Provider), "products", len(products))
	return nil
}

func runToken(w io.Writer, userID, email string) error {
	tokens, err := loadJWT()
	if err != nil {
		return err
	}
	token, err := tokens.Issue(userID, email)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
