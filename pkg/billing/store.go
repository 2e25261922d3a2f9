package billing

import (
	"context"
	"time"
)

// UserStore persists the entitlement fields of users.
type UserStore interface {
	// GetUser returns ErrUserNotFound if no user exists.
	GetUser(ctx context.Context, userID string) (*User, error)

	// SetTokens overwrites the token balance and its expiry.
	SetTokens(ctx context.Context, userID string, tokens int64, expiresAt time.Time) error

	// DecrementTokens atomically subtracts amount when the stored balance is at
	// least amount and has not expired at now. Reports false when no row matched.
	DecrementTokens(ctx context.Context, userID string, amount int64, now time.Time) (bool, error)

	// UpdateMembership writes product, membership status and role in one statement.
	// Returns ErrUserNotFound if no user exists.
	UpdateMembership(ctx context.Context, userID string, upd MembershipUpdate) error

	// ApplyAdminUpdate overwrites the non-nil fields and returns the updated user.
	// Returns ErrUserNotFound if no user exists.
	ApplyAdminUpdate(ctx context.Context, upd AdminUserUpdate) (*User, error)

	CountUsers(ctx context.Context) (int64, error)

	// ListUsers returns users newest first.
	ListUsers(ctx context.Context, limit, offset int) ([]User, error)
}

// CatalogWriter mutates the local catalog mirror.
type CatalogWriter interface {
	DeactivateProducts(ctx context.Context) error
	DeactivatePrices(ctx context.Context) error
	// UpsertProduct inserts or overwrites by product id.
	UpsertProduct(ctx context.Context, p Product) error
	// UpsertPrice inserts or overwrites by price id.
	UpsertPrice(ctx context.Context, p Price) error
}

// CatalogStore reads the catalog mirror and runs writes atomically.
type CatalogStore interface {
	// WithinTx runs fn in a single transaction. Any error rolls back every write.
	WithinTx(ctx context.Context, fn func(ctx context.Context, w CatalogWriter) error) error

	// GetProduct returns ErrProductNotFound if no product exists.
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// ListActiveProducts returns active products with their active prices.
	ListActiveProducts(ctx context.Context) ([]ProductWithPrices, error)
}

// SubscriptionStore persists subscription mirrors.
type SubscriptionStore interface {
	// ListActiveSubscriptions returns the user's active or trialing rows,
	// newest CreatedAt first, ties broken by id descending.
	ListActiveSubscriptions(ctx context.Context, userID string) ([]Subscription, error)

	// UpsertSubscription inserts or overwrites by subscription id.
	UpsertSubscription(ctx context.Context, s Subscription) error

	// CountActiveSubscriptions counts active or trialing rows across all users.
	CountActiveSubscriptions(ctx context.Context) (int64, error)
}

// CustomerStore persists the user to provider customer mapping.
type CustomerStore interface {
	// GetCustomerByUser returns ErrCustomerNotFound if the user has no mapping.
	GetCustomerByUser(ctx context.Context, userID string) (*Customer, error)

	// GetCustomerByProviderID returns ErrCustomerNotFound if the id is unknown.
	GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*Customer, error)

	// Returns ErrCustomerConflict when the provider customer id belongs to
	// another user.
	CreateCustomer(ctx context.Context, c Customer) error
}

// PaymentStore is the append-only payment log.
type PaymentStore interface {
	// RecordPayment ignores duplicates by provider payment id.
	RecordPayment(ctx context.Context, p Payment) error

	// TotalRevenue sums all recorded payment amounts.
	TotalRevenue(ctx context.Context) (int64, error)
}

// Store aggregates every persistence contract of the package.
type Store interface {
	UserStore
	CatalogStore
	SubscriptionStore
	CustomerStore
	PaymentStore
}

// MembershipUpdate is the set of fields written together by UpdateMembership.
type MembershipUpdate struct {
	ProductID *string
	Status    MembershipStatus
	Role      Role
}

// AdminUserUpdate is a direct override of a user's entitlement fields.
// Nil fields are left untouched.
type AdminUserUpdate struct {
	UserID          string
	Role            *Role
	Tokens          *int64
	TokensExpiresAt *time.Time
}
