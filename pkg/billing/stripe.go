package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// StripeProvider implements Provider and CheckoutProvider for Stripe.
type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if strings.TrimSpace(config.SecretKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(config.WebhookSecret) == "" {
		return nil, ErrMissingWebhookSecret
	}

	sc := &client.API{}
	sc.Init(config.SecretKey, nil)

	return &StripeProvider{
		client:        sc,
		webhookSecret: config.WebhookSecret,
	}, nil
}

func (p *StripeProvider) ListProducts(ctx context.Context, active bool) ([]Product, error) {
	params := &stripe.ProductListParams{}
	params.Context = ctx
	if active {
		params.Active = stripe.Bool(true)
	}

	var products []Product
	i := p.client.Products.List(params)
	for i.Next() {
		sp := i.Product()
		products = append(products, Product{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			Active:      sp.Active,
			Metadata:    sp.Metadata,
			CreatedAt:   unixTime(sp.Created),
			UpdatedAt:   unixTime(sp.Updated),
		})
	}
	if err := i.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe products: %w", err)
	}
	return products, nil
}

func (p *StripeProvider) ListPrices(ctx context.Context, active bool) ([]Price, error) {
	params := &stripe.PriceListParams{}
	params.Context = ctx
	if active {
		params.Active = stripe.Bool(true)
	}

	var prices []Price
	i := p.client.Prices.List(params)
	for i.Next() {
		prices = append(prices, priceFromStripe(i.Price()))
	}
	if err := i.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe prices: %w", err)
	}
	return prices, nil
}

func priceFromStripe(sp *stripe.Price) Price {
	price := Price{
		ID:        sp.ID,
		Active:    sp.Active,
		Currency:  string(sp.Currency),
		Type:      string(sp.Type),
		Metadata:  sp.Metadata,
		CreatedAt: unixTime(sp.Created),
		UpdatedAt: unixTime(sp.Created),
	}
	if sp.Product != nil {
		price.ProductID = sp.Product.ID
	}
	amount := sp.UnitAmount
	price.UnitAmount = &amount
	if sp.Recurring != nil {
		price.Interval = string(sp.Recurring.Interval)
		count := sp.Recurring.IntervalCount
		price.IntervalCount = &count
		if sp.Recurring.TrialPeriodDays > 0 {
			days := sp.Recurring.TrialPeriodDays
			price.TrialPeriodDays = &days
		}
	}
	return price
}

func (p *StripeProvider) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var subs []Subscription
	i := p.client.Subscriptions.List(params)
	for i.Next() {
		ss := i.Subscription()
		sub := Subscription{
			ID:                ss.ID,
			CustomerID:        customerID,
			Status:            string(ss.Status),
			CancelAtPeriodEnd: ss.CancelAtPeriodEnd,
			CanceledAt:        unixTimePtr(ss.CanceledAt),
			TrialStart:        unixTimePtr(ss.TrialStart),
			TrialEnd:          unixTimePtr(ss.TrialEnd),
			Metadata:          ss.Metadata,
			CreatedAt:         unixTime(ss.Created),
			UpdatedAt:         time.Now(),
		}
		if ss.Items != nil && len(ss.Items.Data) > 0 {
			item := ss.Items.Data[0]
			sub.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
			sub.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
			if item.Price != nil {
				sub.PriceID = item.Price.ID
				if item.Price.Product != nil {
					sub.ProductID = item.Price.Product.ID
				}
			}
		}
		subs = append(subs, sub)
	}
	if err := i.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stripe subscriptions: %w", err)
	}
	return subs, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	c, err := p.client.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return c.ID, nil
}

// CreateCheckoutSession creates a subscription-mode Checkout Session. The local
// user id is stored on both the session and the subscription metadata.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": req.UserID},
		},
	}
	params.Context = ctx
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.UserID != "" {
		params.ClientReferenceID = stripe.String(req.UserID)
		params.AddMetadata("user_id", req.UserID)
	}

	session, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: unixTime(session.ExpiresAt),
	}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := p.client.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe portal session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoPortalURL
	}
	return &PortalSession{URL: session.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalises the event.
// Unhandled event types yield an event with an empty Type.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	return normaliseStripeEvent(event.ID, string(event.Type), event.Data.Raw)
}

// stripeSubscriptionPayload holds the subscription fields read from webhook
// payloads. Period bounds moved to items in newer API versions, so both
// locations are decoded.
type stripeSubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	Created            int64             `json:"created"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID      string `json:"id"`
				Product string `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoicePayload struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Created    int64  `json:"created"`
	Lines      struct {
		Data []struct {
			Description string `json:"description"`
			Price       *struct {
				Product string `json:"product"`
			} `json:"price"`
			Pricing *struct {
				PriceDetails *struct {
					Product string `json:"product"`
				} `json:"price_details"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"lines"`
	Metadata map[string]string `json:"metadata"`
}

func normaliseStripeEvent(id, eventType string, raw json.RawMessage) (*WebhookEvent, error) {
	event := &WebhookEvent{ID: id, ProviderEvent: eventType}

	switch eventType {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var payload stripeSubscriptionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode stripe subscription: %w", err)
		}
		event.Type = map[string]EventType{
			"customer.subscription.created": EventSubscriptionCreated,
			"customer.subscription.updated": EventSubscriptionUpdated,
			"customer.subscription.deleted": EventSubscriptionDeleted,
		}[eventType]
		event.CustomerID = payload.Customer
		event.UserID = payload.Metadata["user_id"]
		event.Subscription = payload.subscription()

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var payload stripeInvoicePayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode stripe invoice: %w", err)
		}
		event.Type = EventPaymentSucceeded
		if eventType == "invoice.payment_failed" {
			event.Type = EventPaymentFailed
		}
		event.CustomerID = payload.Customer
		event.UserID = payload.Metadata["user_id"]
		event.Payment = payload.payment()

	case "product.created", "product.updated", "product.deleted",
		"price.created", "price.updated", "price.deleted":
		event.Type = EventCatalogChanged
	}

	return event, nil
}

func (s stripeSubscriptionPayload) subscription() *Subscription {
	sub := &Subscription{
		ID:                 s.ID,
		CustomerID:         s.Customer,
		Status:             s.Status,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixTimePtr(s.CanceledAt),
		TrialStart:         unixTimePtr(s.TrialStart),
		TrialEnd:           unixTimePtr(s.TrialEnd),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		Metadata:           s.Metadata,
		CreatedAt:          unixTime(s.Created),
		UserID:             s.Metadata["user_id"],
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		sub.PriceID = item.Price.ID
		sub.ProductID = item.Price.Product
		if item.CurrentPeriodStart > 0 {
			sub.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd > 0 {
			sub.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
	return sub
}

func (inv stripeInvoicePayload) payment() *Payment {
	payment := &Payment{
		ProviderPaymentID: inv.ID,
		Amount:            inv.AmountPaid,
		Currency:          inv.Currency,
		Status:            inv.Status,
		CreatedAt:         unixTime(inv.Created),
		UserID:            inv.Metadata["user_id"],
	}
	if len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		payment.Description = line.Description
		product := ""
		switch {
		case line.Pricing != nil && line.Pricing.PriceDetails != nil:
			product = line.Pricing.PriceDetails.Product
		case line.Price != nil:
			product = line.Price.Product
		}
		if product != "" {
			payment.ProductID = &product
		}
	}
	return payment
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func unixTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
