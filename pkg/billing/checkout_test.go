package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/billing"
)

func TestCheckout_Checkout(t *testing.T) {
	t.Parallel()

	user := &billing.User{ID: "u1", Email: "jane@example.com"}

	t.Run("creates customer once and reuses it", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore(*user)
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, "jane@example.com", map[string]string{"user_id": "u1"}).
			Return("cus_123", nil).Once()

		hosted := &mockCheckoutProvider{}
		hosted.On("CreateCheckoutSession", mock.Anything, billing.CheckoutRequest{
			PriceID:    "price_pro",
			CustomerID: "cus_123",
			UserID:     "u1",
			SuccessURL: "https://app.test/ok",
			CancelURL:  "https://app.test/cancel",
		}).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil).Twice()

		checkout := billing.NewCheckout(provider, hosted, store,
			billing.WithRedirectURLs("https://app.test/ok", "https://app.test/cancel"))

		for range 2 {
			session, err := checkout.Checkout(context.Background(), user, "price_pro")
			require.NoError(t, err)
			assert.Equal(t, "https://pay.test/cs_1", session.URL)
		}

		customer, err := store.GetCustomerByUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "cus_123", customer.ProviderCustomerID)
		assert.NotEmpty(t, customer.ID)

		provider.AssertExpectations(t)
		hosted.AssertExpectations(t)
	})

	t.Run("missing price", func(t *testing.T) {
		t.Parallel()

		checkout := billing.NewCheckout(&mockProvider{}, &mockCheckoutProvider{}, billing.NewMemoryStore())
		_, err := checkout.Checkout(context.Background(), user, "  ")
		assert.ErrorIs(t, err, billing.ErrMissingPriceID)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()

		checkout := billing.NewCheckout(&mockProvider{}, &mockCheckoutProvider{}, billing.NewMemoryStore())
		_, err := checkout.Checkout(context.Background(), nil, "price_pro")
		assert.ErrorIs(t, err, billing.ErrUnauthorized)
	})

	t.Run("provider failure creating customer", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore(*user)
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("", errBoom)
		hosted := &mockCheckoutProvider{}

		checkout := billing.NewCheckout(provider, hosted, store)
		_, err := checkout.Checkout(context.Background(), user, "price_pro")
		assert.ErrorIs(t, err, billing.ErrProviderError)

		_, err = store.GetCustomerByUser(context.Background(), "u1")
		assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
		hosted.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})
}

func TestCheckout_Portal(t *testing.T) {
	t.Parallel()

	t.Run("no billing account", func(t *testing.T) {
		t.Parallel()

		checkout := billing.NewCheckout(&mockProvider{}, &mockCheckoutProvider{}, billing.NewMemoryStore())
		_, err := checkout.Portal(context.Background(), "u1", "https://app.test/back")
		assert.ErrorIs(t, err, billing.ErrNoBillingAccount)
	})

	t.Run("returns portal session of mapped customer", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore()
		require.NoError(t, store.CreateCustomer(context.Background(), billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_9"}))

		hosted := &mockCheckoutProvider{}
		hosted.On("CreatePortalSession", mock.Anything, "cus_9", "https://app.test/back").
			Return(&billing.PortalSession{URL: "https://portal.test/x"}, nil).Once()

		checkout := billing.NewCheckout(&mockProvider{}, hosted, store)
		session, err := checkout.Portal(context.Background(), "u1", "https://app.test/back")
		require.NoError(t, err)
		assert.Equal(t, "https://portal.test/x", session.URL)
		hosted.AssertExpectations(t)
	})
}

func TestMemoryStore_CreateCustomerConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := billing.NewMemoryStore(billing.User{ID: "u1"}, billing.User{ID: "u2"})

	require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_1"}))
	require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_1"}), "relinking the same user is allowed")

	err := store.CreateCustomer(ctx, billing.Customer{ID: "c2", UserID: "u2", ProviderCustomerID: "cus_1"})
	assert.ErrorIs(t, err, billing.ErrCustomerConflict)
}
