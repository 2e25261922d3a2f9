package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/internal/db"
	"github.com/dmitrymomot/launchpad/pkg/billing"
	"github.com/dmitrymomot/launchpad/pkg/billing/pgstore"
	"github.com/dmitrymomot/launchpad/pkg/pg"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	connStr := os.Getenv("PG_CONN_URL")
	if connStr == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{ConnectionString: connStr, MaxOpenConns: 10, RetryAttempts: 1, MigrationsTable: "schema_migrations"}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, db.Migrations(), slog.New(slog.DiscardHandler)))
	return pool
}

func newUser(t *testing.T, store *pgstore.Store) billing.User {
	t.Helper()
	id := uuid.NewString()
	u := billing.User{ID: id, Email: id + "@example.com", Name: "Test"}
	require.NoError(t, store.PutUser(context.Background(), u))
	return u
}

func TestStore_Users(t *testing.T) {
	store := pgstore.New(setupPool(t))
	ctx := context.Background()
	u := newUser(t, store)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.RoleUser, got.Role)
	assert.Equal(t, billing.MembershipInactive, got.MembershipStatus)
	assert.Nil(t, got.TokensExpiresAt)

	_, err = store.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, billing.ErrUserNotFound)

	product := "prod_pro"
	require.NoError(t, store.UpdateMembership(ctx, u.ID, billing.MembershipUpdate{
		ProductID: &product, Status: billing.MembershipActive, Role: billing.RolePremium,
	}))
	got, err = store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ProductID)
	assert.Equal(t, product, *got.ProductID)
	assert.Equal(t, billing.RolePremium, got.Role)

	admin := billing.RoleAdmin
	updated, err := store.ApplyAdminUpdate(ctx, billing.AdminUserUpdate{UserID: u.ID, Role: &admin})
	require.NoError(t, err)
	assert.Equal(t, billing.RoleAdmin, updated.Role)
	assert.Equal(t, billing.MembershipActive, updated.MembershipStatus)

	_, err = store.ApplyAdminUpdate(ctx, billing.AdminUserUpdate{UserID: uuid.NewString(), Role: &admin})
	assert.ErrorIs(t, err, billing.ErrUserNotFound)

	assert.ErrorIs(t, store.UpdateMembership(ctx, uuid.NewString(), billing.MembershipUpdate{
		Status: billing.MembershipInactive, Role: billing.RoleUser,
	}), billing.ErrUserNotFound)
}

func TestStore_DecrementTokens(t *testing.T) {
	store := pgstore.New(setupPool(t))
	ctx := context.Background()
	u := newUser(t, store)
	now := time.Now()

	ok, err := store.DecrementTokens(ctx, u.ID, 1, now)
	require.NoError(t, err)
	assert.False(t, ok, "no expiry set")

	require.NoError(t, store.SetTokens(ctx, u.ID, 7, now.Add(time.Hour)))

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.DecrementTokens(ctx, u.ID, 1, now)
			if err == nil && ok {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(7), succeeded.Load())
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Tokens)

	ok, err = store.DecrementTokens(ctx, u.ID, 1, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	boundary := now.Truncate(time.Microsecond)
	require.NoError(t, store.SetTokens(ctx, u.ID, 1, boundary))
	ok, err = store.DecrementTokens(ctx, u.ID, 1, boundary)
	require.NoError(t, err)
	assert.True(t, ok, "balance expiring at now is still spendable")
}

func TestStore_CatalogTx(t *testing.T) {
	store := pgstore.New(setupPool(t))
	ctx := context.Background()
	productID := "prod_" + uuid.NewString()
	amount := int64(1900)

	err := store.WithinTx(ctx, func(ctx context.Context, w billing.CatalogWriter) error {
		if err := w.UpsertProduct(ctx, billing.Product{ID: productID, Name: "Pro", Active: true, Metadata: map[string]string{"tokens": "100"}}); err != nil {
			return err
		}
		return w.UpsertPrice(ctx, billing.Price{ID: "price_" + uuid.NewString(), ProductID: productID, Active: true, Currency: "usd", Type: "recurring", UnitAmount: &amount, Interval: "month"})
	})
	require.NoError(t, err)

	p, err := store.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.TokenGrant())

	products, err := store.ListActiveProducts(ctx)
	require.NoError(t, err)
	var found bool
	for _, item := range products {
		if item.ID == productID {
			found = true
			require.Len(t, item.Prices, 1)
			assert.Equal(t, "month", item.Prices[0].Interval)
		}
	}
	assert.True(t, found)

	rolledBack := "prod_" + uuid.NewString()
	err = store.WithinTx(ctx, func(ctx context.Context, w billing.CatalogWriter) error {
		if err := w.UpsertProduct(ctx, billing.Product{ID: rolledBack, Name: "Gone", Active: true}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	_, err = store.GetProduct(ctx, rolledBack)
	assert.ErrorIs(t, err, billing.ErrProductNotFound)
}

func TestStore_SubscriptionsAndPayments(t *testing.T) {
	store := pgstore.New(setupPool(t))
	ctx := context.Background()
	u := newUser(t, store)
	created := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)

	require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{
		ID: "sub_a_" + u.ID, UserID: u.ID, CustomerID: "cus_1", Status: billing.StatusActive, CreatedAt: created,
	}))
	require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{
		ID: "sub_b_" + u.ID, UserID: u.ID, CustomerID: "cus_1", Status: billing.StatusTrialing, CreatedAt: created,
	}))
	require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{
		ID: "sub_c_" + u.ID, UserID: u.ID, CustomerID: "cus_1", Status: billing.StatusCanceled, CreatedAt: created.Add(time.Minute),
	}))

	subs, err := store.ListActiveSubscriptions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_b_"+u.ID, subs[0].ID, "equal created_at resolves by id descending")

	// Upsert keeps created_at.
	require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{
		ID: "sub_a_" + u.ID, UserID: u.ID, CustomerID: "cus_1", Status: billing.StatusActive, CreatedAt: time.Now(),
	}))
	subs, err = store.ListActiveSubscriptions(ctx, u.ID)
	require.NoError(t, err)
	for _, s := range subs {
		assert.True(t, s.CreatedAt.Equal(created))
	}

	before, err := store.TotalRevenue(ctx)
	require.NoError(t, err)
	payment := billing.Payment{ID: uuid.NewString(), UserID: u.ID, ProviderPaymentID: "in_" + u.ID, Amount: 1900, Currency: "usd", Status: "paid"}
	require.NoError(t, store.RecordPayment(ctx, payment))
	payment.ID = uuid.NewString()
	require.NoError(t, store.RecordPayment(ctx, payment))
	after, err := store.TotalRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1900, after)
}

func TestStore_Customers(t *testing.T) {
	store := pgstore.New(setupPool(t))
	ctx := context.Background()
	u := newUser(t, store)

	_, err := store.GetCustomerByUser(ctx, u.ID)
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)

	providerID := "cus_" + u.ID
	require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: uuid.NewString(), UserID: u.ID, ProviderCustomerID: providerID}))

	c, err := store.GetCustomerByProviderID(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, c.UserID)

	other := newUser(t, store)
	err = store.CreateCustomer(ctx, billing.Customer{ID: uuid.NewString(), UserID: other.ID, ProviderCustomerID: providerID})
	assert.ErrorIs(t, err, billing.ErrCustomerConflict)

	err = store.CreateCustomer(ctx, billing.Customer{ID: uuid.NewString(), UserID: "missing-" + uuid.NewString(), ProviderCustomerID: "cus_" + uuid.NewString()})
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}

func TestNew_PanicsOnNilPool(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { pgstore.New(nil) })
}
