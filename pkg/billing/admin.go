package billing

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AdminStore is the persistence the Admin service needs.
type AdminStore interface {
	UserStore
	SubscriptionStore
	PaymentStore
}

// DashboardStats is the aggregate view of the admin dashboard.
type DashboardStats struct {
	TotalUsers          int64 `json:"total_users"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`
	TotalRevenue        int64 `json:"total_revenue"`
}

// UserOverview is a user with the subscription that currently represents them.
type UserOverview struct {
	User         User          `json:"user"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Admin exposes direct entitlement overrides and dashboard data.
// Every operation checks that the actor is an admin before touching the store.
type Admin struct {
	store       AdminStore
	ledger      *Ledger
	resolver    *Resolver
	now         func() time.Time
	grantPeriod time.Duration
}

// AdminOption configures an Admin service.
type AdminOption func(*Admin)

// WithAdminClock overrides time.Now.
func WithAdminClock(clock func() time.Time) AdminOption {
	return func(a *Admin) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithAdminGrantPeriod sets the default expiry applied to token overrides.
func WithAdminGrantPeriod(d time.Duration) AdminOption {
	return func(a *Admin) {
		if d > 0 {
			a.grantPeriod = d
		}
	}
}

// NewAdmin creates an Admin service. Panics if any dependency is nil.
func NewAdmin(store AdminStore, ledger *Ledger, resolver *Resolver, opts ...AdminOption) *Admin {
	if store == nil {
		panic("billing: AdminStore is required")
	}
	if ledger == nil {
		panic("billing: Ledger is required")
	}
	if resolver == nil {
		panic("billing: Resolver is required")
	}

	a := &Admin{
		store:       store,
		ledger:      ledger,
		resolver:    resolver,
		now:         time.Now,
		grantPeriod: DefaultGrantPeriod,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Admin) authorize(ctx context.Context, actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrUnauthorized
	}
	ok, err := a.ledger.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// UpdateUser overwrites a user's role, tokens and token expiry, bypassing the
// token lifecycle. Tokens without an explicit expiry expire one grant period
// from now.
func (a *Admin) UpdateUser(ctx context.Context, actorID string, upd AdminUserUpdate) (*User, error) {
	if err := a.authorize(ctx, actorID); err != nil {
		return nil, err
	}

	upd.UserID = strings.TrimSpace(upd.UserID)
	if upd.UserID == "" {
		return nil, ErrMissingUserID
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if upd.Tokens != nil && *upd.Tokens < 0 {
		return nil, ErrNegativeTokens
	}
	if upd.Role == nil && upd.Tokens == nil && upd.TokensExpiresAt == nil {
		return nil, ErrNoUpdates
	}
	if upd.Tokens != nil && upd.TokensExpiresAt == nil {
		expiresAt := a.now().Add(a.grantPeriod)
		upd.TokensExpiresAt = &expiresAt
	}

	user, err := a.store.ApplyAdminUpdate(ctx, upd)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return user, nil
}

// Stats returns the dashboard counters.
func (a *Admin) Stats(ctx context.Context, actorID string) (DashboardStats, error) {
	if err := a.authorize(ctx, actorID); err != nil {
		return DashboardStats{}, err
	}

	users, err := a.store.CountUsers(ctx)
	if err != nil {
		return DashboardStats{}, errors.Join(ErrStoreFailure, err)
	}
	subs, err := a.store.CountActiveSubscriptions(ctx)
	if err != nil {
		return DashboardStats{}, errors.Join(ErrStoreFailure, err)
	}
	revenue, err := a.store.TotalRevenue(ctx)
	if err != nil {
		return DashboardStats{}, errors.Join(ErrStoreFailure, err)
	}

	return DashboardStats{
		TotalUsers:          users,
		ActiveSubscriptions: subs,
		TotalRevenue:        revenue,
	}, nil
}

// Users lists users newest first together with their resolved subscription.
func (a *Admin) Users(ctx context.Context, actorID string, limit, offset int) ([]UserOverview, error) {
	if err := a.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := a.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	result := make([]UserOverview, 0, len(users))
	for _, u := range users {
		sub, err := a.resolver.Resolve(ctx, u.ID, false)
		if err != nil {
			return nil, err
		}
		result = append(result, UserOverview{User: u, Subscription: sub})
	}
	return result, nil
}
