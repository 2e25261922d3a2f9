package billing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Checkout starts hosted checkouts and customer portal sessions.
type Checkout struct {
	provider   Provider
	hosted     CheckoutProvider
	customers  CustomerStore
	successURL string
	cancelURL  string
	logger     *slog.Logger
	now        func() time.Time
}

// CheckoutOption configures a Checkout service.
type CheckoutOption func(*Checkout)

// WithRedirectURLs sets the URLs the hosted checkout returns to.
func WithRedirectURLs(successURL, cancelURL string) CheckoutOption {
	return func(c *Checkout) {
		c.successURL = successURL
		c.cancelURL = cancelURL
	}
}

// WithCheckoutLogger sets the logger.
func WithCheckoutLogger(l *slog.Logger) CheckoutOption {
	return func(c *Checkout) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCheckout creates a Checkout service. Panics if any dependency is nil.
func NewCheckout(provider Provider, hosted CheckoutProvider, customers CustomerStore, opts ...CheckoutOption) *Checkout {
	if provider == nil {
		panic("billing: Provider is required")
	}
	if hosted == nil {
		panic("billing: CheckoutProvider is required")
	}
	if customers == nil {
		panic("billing: CustomerStore is required")
	}

	cfg := Config{AppURL: "http://localhost:8080"}
	c := &Checkout{
		provider:   provider,
		hosted:     hosted,
		customers:  customers,
		successURL: cfg.CheckoutSuccessURL(),
		cancelURL:  cfg.CheckoutCancelURL(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checkout creates a subscription checkout for priceID. The user's provider
// customer is created on first checkout and remembered.
func (c *Checkout) Checkout(ctx context.Context, user *User, priceID string) (*CheckoutSession, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthorized
	}
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, ErrMissingPriceID
	}

	customerID, err := c.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	session, err := c.hosted.CreateCheckoutSession(ctx, CheckoutRequest{
		PriceID:    priceID,
		CustomerID: customerID,
		UserID:     user.ID,
		SuccessURL: c.successURL,
		CancelURL:  c.cancelURL,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return session, nil
}

// Portal returns a customer portal link. Users who never checked out get
// ErrNoBillingAccount.
func (c *Checkout) Portal(ctx context.Context, userID, returnURL string) (*PortalSession, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	customer, err := c.customers.GetCustomerByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrNoBillingAccount
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}

	if returnURL == "" {
		returnURL = c.successURL
	}
	session, err := c.hosted.CreatePortalSession(ctx, customer.ProviderCustomerID, returnURL)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	return session, nil
}

func (c *Checkout) ensureCustomer(ctx context.Context, user *User) (string, error) {
	existing, err := c.customers.GetCustomerByUser(ctx, user.ID)
	if err == nil {
		return existing.ProviderCustomerID, nil
	}
	if !errors.Is(err, ErrCustomerNotFound) {
		return "", errors.Join(ErrStoreFailure, err)
	}

	if user.Email == "" {
		return "", ErrMissingEmail
	}

	providerID, err := c.provider.CreateCustomer(ctx, user.Email, map[string]string{"user_id": user.ID})
	if err != nil {
		return "", errors.Join(ErrProviderError, err)
	}

	now := c.now()
	if err := c.customers.CreateCustomer(ctx, Customer{
		ID:                 uuid.NewString(),
		UserID:             user.ID,
		ProviderCustomerID: providerID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}); err != nil {
		return "", errors.Join(ErrStoreFailure, err)
	}

	c.logger.InfoContext(ctx, "billing customer created",
		slog.String("user_id", user.ID),
		slog.String("customer_id", providerID),
	)
	return providerID, nil
}
