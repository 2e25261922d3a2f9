package billing_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/launchpad/pkg/billing"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ListProducts(ctx context.Context, active bool) ([]billing.Product, error) {
	args := m.Called(ctx, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Product), args.Error(1)
}

func (m *mockProvider) ListPrices(ctx context.Context, active bool) ([]billing.Price, error) {
	args := m.Called(ctx, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Price), args.Error(1)
}

func (m *mockProvider) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Subscription), args.Error(1)
}

func (m *mockProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, email, metadata)
	return args.String(0), args.Error(1)
}

type mockCheckoutProvider struct {
	mock.Mock
}

func (m *mockCheckoutProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockCheckoutProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.PortalSession, error) {
	args := m.Called(ctx, customerID, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PortalSession), args.Error(1)
}

func (m *mockCheckoutProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

// failingPriceStore fails every price upsert inside a catalog transaction.
type failingPriceStore struct {
	*billing.MemoryStore
}

func (s failingPriceStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w billing.CatalogWriter) error) error {
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, w billing.CatalogWriter) error {
		return fn(ctx, failingPriceWriter{w})
	})
}

type failingPriceWriter struct {
	billing.CatalogWriter
}

func (failingPriceWriter) UpsertPrice(context.Context, billing.Price) error {
	return errBoom
}

// staleTokenStore acknowledges token writes without persisting them.
type staleTokenStore struct {
	*billing.MemoryStore
}

func (staleTokenStore) SetTokens(context.Context, string, int64, time.Time) error {
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

// seedCatalog writes products and prices as the provider's active catalog.
func seedCatalog(store *billing.MemoryStore, products []billing.Product, prices []billing.Price) {
	_ = store.WithinTx(context.Background(), func(ctx context.Context, w billing.CatalogWriter) error {
		for _, p := range products {
			if err := w.UpsertProduct(ctx, p); err != nil {
				return err
			}
		}
		for _, p := range prices {
			if err := w.UpsertPrice(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func proProduct() billing.Product {
	return billing.Product{
		ID:     "prod_pro",
		Name:   "Pro Plan",
		Active: true,
		Metadata: map[string]string{
			billing.MetadataTokens:      "100",
			billing.MetadataFeatures:    `["api","priority support"]`,
			billing.MetadataDisplayName: "Pro",
		},
	}
}

func freeProduct() billing.Product {
	return billing.Product{ID: "prod_free", Name: "Free", Active: true}
}

// newServices wires the entitlement components over a MemoryStore with a test clock.
func newServices(store *billing.MemoryStore, provider billing.Provider, clock *testClock) (*billing.Resolver, *billing.Ledger) {
	resolver := billing.NewResolver(provider, store)
	ledger := billing.NewLedger(store, resolver, billing.WithClock(clock.Now))
	return resolver, ledger
}
