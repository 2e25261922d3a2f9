package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/billing"
)

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	t.Run("newest active or trialing row wins", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		ctx := context.Background()
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_a", UserID: "u1", Status: billing.StatusActive, CreatedAt: t1}))
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_b", UserID: "u1", Status: billing.StatusTrialing, CreatedAt: t2}))
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_c", UserID: "u1", Status: billing.StatusCanceled, CreatedAt: t2.Add(time.Hour)}))

		resolver := billing.NewResolver(&mockProvider{}, store)
		sub, err := resolver.Resolve(ctx, "u1", false)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, "sub_b", sub.ID)

		list, err := resolver.ListActive(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "sub_b", list[0].ID)
		assert.Equal(t, "sub_a", list[1].ID)
	})

	t.Run("equal timestamps break ties by id descending", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		ctx := context.Background()
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_1", UserID: "u1", Status: billing.StatusActive, CreatedAt: t1}))
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_2", UserID: "u1", Status: billing.StatusActive, CreatedAt: t1}))

		resolver := billing.NewResolver(&mockProvider{}, store)
		for range 5 {
			sub, err := resolver.Resolve(ctx, "u1", false)
			require.NoError(t, err)
			assert.Equal(t, "sub_2", sub.ID)
		}
	})

	t.Run("no qualifying rows yields nil", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		require.NoError(t, store.UpsertSubscription(context.Background(), billing.Subscription{ID: "sub_x", UserID: "u1", Status: billing.StatusPastDue, CreatedAt: t1}))

		resolver := billing.NewResolver(&mockProvider{}, store)
		sub, err := resolver.Resolve(context.Background(), "u1", false)
		require.NoError(t, err)
		assert.Nil(t, sub)

		has, err := resolver.HasActive(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, has)

		tier, err := resolver.Tier(context.Background(), "u1")
		require.NoError(t, err)
		assert.Nil(t, tier)
	})

	t.Run("auto sync pulls subscriptions of mapped customer", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_1"}))

		provider := &mockProvider{}
		provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").Return([]billing.Subscription{
			{ID: "sub_remote", Status: billing.StatusActive, ProductID: "prod_pro", CreatedAt: t2},
		}, nil).Once()

		resolver := billing.NewResolver(provider, store)
		sub, err := resolver.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, "sub_remote", sub.ID)
		assert.Equal(t, "u1", sub.UserID)
		assert.Equal(t, "cus_1", sub.CustomerID)

		tier, err := resolver.Tier(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, tier)
		assert.Equal(t, "prod_pro", *tier)

		provider.AssertExpectations(t)
	})

	t.Run("auto sync without customer mapping skips provider", func(t *testing.T) {
		t.Parallel()

		provider := &mockProvider{}
		resolver := billing.NewResolver(provider, billing.NewMemoryStore(billing.User{ID: "u1"}))

		sub, err := resolver.Resolve(context.Background(), "u1", true)
		require.NoError(t, err)
		assert.Nil(t, sub)
		provider.AssertNotCalled(t, "ListCustomerSubscriptions", mock.Anything, mock.Anything)
	})

	t.Run("provider failure falls back to local rows", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_1"}))
		require.NoError(t, store.UpsertSubscription(ctx, billing.Subscription{ID: "sub_local", UserID: "u1", Status: billing.StatusActive, CreatedAt: t1}))

		provider := &mockProvider{}
		provider.On("ListCustomerSubscriptions", mock.Anything, "cus_1").Return(nil, errBoom)

		resolver := billing.NewResolver(provider, store)
		sub, err := resolver.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, "sub_local", sub.ID)
	})

	t.Run("reconcile disabled never calls provider", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := billing.NewMemoryStore(billing.User{ID: "u1"})
		require.NoError(t, store.CreateCustomer(ctx, billing.Customer{ID: "c1", UserID: "u1", ProviderCustomerID: "cus_1"}))

		provider := &mockProvider{}
		resolver := billing.NewResolver(provider, store, billing.WithReconcile(false))

		_, err := resolver.Resolve(ctx, "u1", true)
		require.NoError(t, err)
		provider.AssertNotCalled(t, "ListCustomerSubscriptions", mock.Anything, mock.Anything)
	})
}
