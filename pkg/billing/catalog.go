package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// CatalogSyncer mirrors the provider's active products and prices into the store.
type CatalogSyncer struct {
	provider Provider
	store    CatalogStore
	gate     SyncGate
	logger   *slog.Logger
	group    singleflight.Group
}

// CatalogOption configures a CatalogSyncer.
type CatalogOption func(*CatalogSyncer)

// WithSyncGate replaces the default in-memory gate.
func WithSyncGate(gate SyncGate) CatalogOption {
	return func(c *CatalogSyncer) {
		if gate != nil {
			c.gate = gate
		}
	}
}

// WithCatalogLogger sets the logger used for soft failures.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *CatalogSyncer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalogSyncer creates a syncer with a DefaultSyncWindow in-memory gate.
// Panics if provider or store is nil.
func NewCatalogSyncer(provider Provider, store CatalogStore, opts ...CatalogOption) *CatalogSyncer {
	if provider == nil {
		panic("billing: Provider is required")
	}
	if store == nil {
		panic("billing: CatalogStore is required")
	}

	c := &CatalogSyncer{
		provider: provider,
		store:    store,
		gate:     NewMemorySyncGate(DefaultSyncWindow, nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync refreshes the catalog unless force is false and the sync window has not
// elapsed. Failures are logged and swallowed: a stale catalog must never break
// the surrounding request.
func (c *CatalogSyncer) Sync(ctx context.Context, force bool) {
	if !force && !c.gate.Due(ctx) {
		CatalogSyncTotal.WithLabelValues("skipped").Inc()
		c.logger.DebugContext(ctx, "catalog sync skipped, using cached data")
		return
	}

	if err := c.SyncNow(ctx); err != nil {
		c.logger.ErrorContext(ctx, "catalog sync failed", slog.Any("error", err))
	}
}

// SyncNow runs a full sync regardless of the gate and returns its error.
// Concurrent calls in the same process share one run.
func (c *CatalogSyncer) SyncNow(ctx context.Context) error {
	_, err, _ := c.group.Do("catalog", func() (any, error) {
		return nil, c.sync(context.WithoutCancel(ctx))
	})
	return err
}

func (c *CatalogSyncer) sync(ctx context.Context) error {
	start := time.Now()
	defer func() { CatalogSyncDuration.Observe(time.Since(start).Seconds()) }()

	products, err := c.provider.ListProducts(ctx, true)
	if err != nil {
		CatalogSyncTotal.WithLabelValues("failure").Inc()
		return errors.Join(ErrCatalogSync, ErrProviderError, err)
	}

	prices, err := c.provider.ListPrices(ctx, true)
	if err != nil {
		CatalogSyncTotal.WithLabelValues("failure").Inc()
		return errors.Join(ErrCatalogSync, ErrProviderError, err)
	}

	pricesByProduct := make(map[string][]Price, len(products))
	for _, p := range prices {
		pricesByProduct[p.ProductID] = append(pricesByProduct[p.ProductID], p)
	}

	// Deactivate-all then upsert-fetched leaves exactly the provider's active
	// catalog marked active. The transaction keeps a failed write from
	// exposing an all-inactive catalog.
	err = c.store.WithinTx(ctx, func(ctx context.Context, w CatalogWriter) error {
		if err := w.DeactivateProducts(ctx); err != nil {
			return fmt.Errorf("deactivate products: %w", err)
		}
		if err := w.DeactivatePrices(ctx); err != nil {
			return fmt.Errorf("deactivate prices: %w", err)
		}
		for _, product := range products {
			if err := w.UpsertProduct(ctx, product); err != nil {
				return fmt.Errorf("upsert product %s: %w", product.ID, err)
			}
			for _, price := range pricesByProduct[product.ID] {
				price.ProductID = product.ID
				if err := w.UpsertPrice(ctx, price); err != nil {
					return fmt.Errorf("upsert price %s: %w", price.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		CatalogSyncTotal.WithLabelValues("failure").Inc()
		return errors.Join(ErrCatalogSync, ErrStoreFailure, err)
	}

	c.gate.MarkSynced(ctx)
	CatalogSyncTotal.WithLabelValues("success").Inc()
	c.logger.InfoContext(ctx, "catalog synced",
		slog.Int("products", len(products)),
		slog.Int("prices", len(prices)),
	)
	return nil
}

// ActiveProducts returns the active catalog, optionally syncing first.
// Any store error degrades to an empty list.
func (c *CatalogSyncer) ActiveProducts(ctx context.Context, autoSync bool) []ProductWithPrices {
	if autoSync {
		c.Sync(ctx, false)
	}

	products, err := c.store.ListActiveProducts(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to list active products", slog.Any("error", err))
		return []ProductWithPrices{}
	}
	return products
}

var nonSlugChars = regexp.MustCompile(`\s+`)

// Tiers presents the active catalog as membership tiers, ordered as stored.
func (c *CatalogSyncer) Tiers(ctx context.Context, autoSync bool) []Tier {
	products := c.ActiveProducts(ctx, autoSync)
	tiers := make([]Tier, 0, len(products))
	for i, p := range products {
		tier := Tier{
			ID:          p.ID,
			Name:        nonSlugChars.ReplaceAllString(strings.ToLower(p.Name), "_"),
			DisplayName: p.DisplayName(),
			Description: p.Description,
			Currency:    "usd",
			Features:    p.Features(),
			Active:      p.Active,
			SortOrder:   i,
		}
		if len(p.Prices) > 0 {
			first := p.Prices[0]
			if first.UnitAmount != nil {
				tier.Price = *first.UnitAmount
			}
			if first.Currency != "" {
				tier.Currency = first.Currency
			}
			tier.Interval = first.Interval
		}
		tiers = append(tiers, tier)
	}
	return tiers
}
