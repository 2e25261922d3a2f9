package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// LedgerStore is the persistence the Ledger needs.
type LedgerStore interface {
	UserStore
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// Ledger computes and mutates user entitlements: token balance, membership and access.
type Ledger struct {
	store       LedgerStore
	resolver    *Resolver
	logger      *slog.Logger
	now         func() time.Time
	grantPeriod time.Duration
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithGrantPeriod overrides DefaultGrantPeriod. Non-positive values are ignored.
func WithGrantPeriod(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.grantPeriod = d
		}
	}
}

// WithLedgerLogger sets the logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a Ledger. Panics if store or resolver is nil.
func NewLedger(store LedgerStore, resolver *Resolver, opts ...LedgerOption) *Ledger {
	if store == nil {
		panic("billing: LedgerStore is required")
	}
	if resolver == nil {
		panic("billing: Resolver is required")
	}

	l := &Ledger{
		store:       store,
		resolver:    resolver,
		logger:      slog.Default(),
		now:         time.Now,
		grantPeriod: DefaultGrantPeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Balance returns the effective token balance. An expired allocation of an
// active member with an assigned product is refilled lazily before returning.
// A missing user yields an empty expired balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (TokenBalance, error) {
	balance, refill, err := l.inspect(ctx, userID)
	if err != nil || refill == nil {
		return balance, err
	}

	granted, err := l.AllocateTokens(ctx, userID, *refill)
	if err != nil {
		return TokenBalance{}, err
	}
	if !granted {
		// Product grants nothing: the balance stays expired.
		return balance, nil
	}
	TokenRefillTotal.Inc()

	balance, refill, err = l.inspect(ctx, userID)
	if err != nil {
		return TokenBalance{}, err
	}
	if refill != nil {
		return TokenBalance{}, ErrRefillNotSettled
	}
	return balance, nil
}

// inspect reads the stored balance and returns the product to refill from
// when the allocation is expired and the user is entitled to a new one.
func (l *Ledger) inspect(ctx context.Context, userID string) (TokenBalance, *string, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenBalance{Expired: true}, nil, nil
		}
		return TokenBalance{}, nil, errors.Join(ErrStoreFailure, err)
	}

	now := l.now()
	expired := user.TokensExpiresAt == nil || user.TokensExpiresAt.Before(now)
	if !expired {
		return TokenBalance{Tokens: user.Tokens, ExpiresAt: user.TokensExpiresAt}, nil, nil
	}

	balance := TokenBalance{Expired: true, ExpiresAt: user.TokensExpiresAt}
	if user.MembershipStatus == MembershipActive && HasPremiumAccess(user.ProductID) {
		return balance, user.ProductID, nil
	}
	return balance, nil, nil
}

// AllocateTokens overwrites the user's balance with the product's grant and
// sets the expiry one grant period from now. A product without a grant leaves
// the user untouched and reports false.
func (l *Ledger) AllocateTokens(ctx context.Context, userID, productID string) (bool, error) {
	product, err := l.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return false, nil
		}
		return false, errors.Join(ErrStoreFailure, err)
	}

	tokens := product.TokenGrant()
	if tokens <= 0 {
		return false, nil
	}

	expiresAt := l.now().Add(l.grantPeriod)
	if err := l.store.SetTokens(ctx, userID, tokens, expiresAt); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, err
		}
		return false, errors.Join(ErrStoreFailure, err)
	}

	l.logger.InfoContext(ctx, "tokens allocated",
		slog.String("user_id", userID),
		slog.String("product_id", productID),
		slog.Int64("tokens", tokens),
		slog.Time("expires_at", expiresAt),
	)
	return true, nil
}

// ConsumeTokens spends amount tokens. Insufficient or expired balance is a
// false result, not an error.
func (l *Ledger) ConsumeTokens(ctx context.Context, userID string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidTokenAmount
	}

	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	if balance.Expired || balance.Tokens < amount {
		TokenConsumeTotal.WithLabelValues("denied").Inc()
		return false, nil
	}

	ok, err := l.store.DecrementTokens(ctx, userID, amount, l.now())
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	if !ok {
		TokenConsumeTotal.WithLabelValues("denied").Inc()
		return false, nil
	}
	TokenConsumeTotal.WithLabelValues("granted").Inc()
	return true, nil
}

// UpdateMembership records the user's product and membership status.
// ADMIN is never demoted; otherwise the role follows product assignment.
func (l *Ledger) UpdateMembership(ctx context.Context, userID string, productID *string, status MembershipStatus) error {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return errors.Join(ErrStoreFailure, err)
	}

	role := RoleUser
	switch {
	case user.Role == RoleAdmin:
		role = RoleAdmin
	case HasPremiumAccess(productID):
		role = RolePremium
	}

	if err := l.store.UpdateMembership(ctx, userID, MembershipUpdate{
		ProductID: productID,
		Status:    status,
		Role:      role,
	}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// CheckAccess grants access to admins and to users with a resolved subscription.
// A missing user yields the zero Access.
func (l *Ledger) CheckAccess(ctx context.Context, userID string, autoSync bool) (Access, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Access{}, nil
		}
		return Access{}, errors.Join(ErrStoreFailure, err)
	}

	sub, err := l.resolver.Resolve(ctx, userID, autoSync)
	if err != nil {
		return Access{}, err
	}

	return Access{
		HasAccess:    user.IsAdmin() || sub != nil,
		Subscription: sub,
		User:         user,
	}, nil
}

// IsAdmin reports whether the user holds the ADMIN role. Missing users are not admins.
func (l *Ledger) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, errors.Join(ErrStoreFailure, err)
	}
	return user.IsAdmin(), nil
}
