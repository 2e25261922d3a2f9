package billing

import (
	"context"
	"errors"
	"log/slog"
)

// ResolverStore is the persistence the Resolver reads and reconciles into.
type ResolverStore interface {
	SubscriptionStore
	CustomerStore
}

// Resolver picks the subscription that represents a user's paid status.
type Resolver struct {
	provider  Provider
	store     ResolverStore
	logger    *slog.Logger
	reconcile bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithReconcile toggles the per-user provider pull before resolution.
// Disabled, auto-sync resolution reads local rows only and webhooks are the
// sole source of subscription updates.
func WithReconcile(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.reconcile = enabled
	}
}

// WithResolverLogger sets the logger used for soft failures.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver with reconciliation enabled.
// Panics if provider or store is nil.
func NewResolver(provider Provider, store ResolverStore, opts ...ResolverOption) *Resolver {
	if provider == nil {
		panic("billing: Provider is required")
	}
	if store == nil {
		panic("billing: ResolverStore is required")
	}

	r := &Resolver{
		provider:  provider,
		store:     store,
		logger:    slog.Default(),
		reconcile: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the newest active or trialing subscription of the user, or
// nil if there is none. With autoSync the user's subscriptions are pulled from
// the provider first; that step never fails the call.
func (r *Resolver) Resolve(ctx context.Context, userID string, autoSync bool) (*Subscription, error) {
	if autoSync {
		r.syncUser(ctx, userID)
	}

	subs, err := r.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

// ListActive returns the user's active or trialing subscriptions, newest first.
func (r *Resolver) ListActive(ctx context.Context, userID string) ([]Subscription, error) {
	subs, err := r.store.ListActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return subs, nil
}

// HasActive reports whether the user has a resolved subscription.
// It reads local rows only.
func (r *Resolver) HasActive(ctx context.Context, userID string) (bool, error) {
	sub, err := r.Resolve(ctx, userID, false)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// Tier returns the product id of the resolved subscription, nil if none.
func (r *Resolver) Tier(ctx context.Context, userID string) (*string, error) {
	sub, err := r.Resolve(ctx, userID, false)
	if err != nil || sub == nil {
		return nil, err
	}
	productID := sub.ProductID
	return &productID, nil
}

func (r *Resolver) syncUser(ctx context.Context, userID string) {
	if !r.reconcile {
		return
	}

	customer, err := r.store.GetCustomerByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrCustomerNotFound) {
			r.logger.ErrorContext(ctx, "failed to load billing customer",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
		return
	}

	remote, err := r.provider.ListCustomerSubscriptions(ctx, customer.ProviderCustomerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to fetch customer subscriptions",
			slog.String("user_id", userID),
			slog.String("customer_id", customer.ProviderCustomerID),
			slog.Any("error", err),
		)
		return
	}

	for _, sub := range remote {
		sub.UserID = userID
		if sub.CustomerID == "" {
			sub.CustomerID = customer.ProviderCustomerID
		}
		if err := r.store.UpsertSubscription(ctx, sub); err != nil {
			r.logger.ErrorContext(ctx, "failed to store subscription",
				slog.String("user_id", userID),
				slog.String("subscription_id", sub.ID),
				slog.Any("error", err),
			)
		}
	}
}
