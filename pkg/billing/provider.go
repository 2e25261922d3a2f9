package billing

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider is the narrow contract the entitlement logic needs from a billing
// provider. Implementations translate SDK objects into package types so that
// nothing outside the provider file depends on a vendor SDK.
type Provider interface {
	// ListProducts returns catalog products filtered by the active flag.
	ListProducts(ctx context.Context, active bool) ([]Product, error)

	// ListPrices returns catalog prices filtered by the active flag.
	ListPrices(ctx context.Context, active bool) ([]Price, error)

	// ListCustomerSubscriptions returns the provider's subscriptions for a customer.
	// UserID is left empty; callers own the customer-to-user mapping.
	ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// CreateCustomer registers a customer and returns the provider's customer id.
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
}

// CheckoutProvider covers the hosted pages and webhooks of a billing provider.
// Kept apart from Provider because the entitlement core never touches it.
type CheckoutProvider interface {
	// CreateCheckoutSession creates a hosted subscription checkout.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CreatePortalSession returns a short-lived customer portal link.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)

	// ParseWebhook validates the signature and normalises the event.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // provider price id
	CustomerID string // provider customer id
	UserID     string // local user id, echoed back through metadata
	SuccessURL string
	CancelURL  string
}

// CheckoutSession represents a hosted checkout session.
type CheckoutSession struct {
	ID        string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PortalSession represents a customer portal session.
type PortalSession struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// EventType is the normalised webhook event type.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventCatalogChanged      EventType = "catalog_changed"
)

// WebhookEvent is a provider event normalised by ParseWebhook.
// Only the fields relevant to Type are populated.
type WebhookEvent struct {
	ID            string
	Type          EventType
	ProviderEvent string
	Subscription  *Subscription // subscription events, UserID may be empty
	Payment       *Payment      // payment events, UserID may be empty
	CustomerID    string        // provider customer id
	UserID        string        // local user id when the provider echoes it back
}

// BillingProvider is a provider that also serves checkout, portal and webhooks.
type BillingProvider interface {
	Provider
	CheckoutProvider
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg Config, stripeCfg StripeConfig, paddleCfg PaddleConfig) (BillingProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderStripe, "":
		p, err := NewStripeProvider(stripeCfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderPaddle:
		p, err := NewPaddleProvider(paddleCfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
