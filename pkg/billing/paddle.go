package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider and CheckoutProvider for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle provider for the configured environment.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) ListProducts(ctx context.Context, active bool) ([]Product, error) {
	req := &paddle.ListProductsRequest{}
	if active {
		req.Status = []string{"active"}
	}

	res, err := p.client.ProductsClient.ListProducts(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list paddle products: %w", err)
	}

	var products []Product
	err = res.Iter(ctx, func(pp *paddle.Product) (bool, error) {
		product := Product{
			ID:        pp.ID,
			Name:      pp.Name,
			Active:    string(pp.Status) == "active",
			Metadata:  customDataStrings(pp.CustomData),
			CreatedAt: parsePaddleTime(pp.CreatedAt),
			UpdatedAt: parsePaddleTime(pp.UpdatedAt),
		}
		if pp.Description != nil {
			product.Description = *pp.Description
		}
		products = append(products, product)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate paddle products: %w", err)
	}
	return products, nil
}

func (p *PaddleProvider) ListPrices(ctx context.Context, active bool) ([]Price, error) {
	req := &paddle.ListPricesRequest{}
	if active {
		req.Status = []string{"active"}
	}

	res, err := p.client.PricesClient.ListPrices(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list paddle prices: %w", err)
	}

	var prices []Price
	err = res.Iter(ctx, func(pp *paddle.Price) (bool, error) {
		price := Price{
			ID:        pp.ID,
			ProductID: pp.ProductID,
			Active:    string(pp.Status) == "active",
			Currency:  strings.ToLower(string(pp.UnitPrice.CurrencyCode)),
			Type:      "one_time",
			Metadata:  customDataStrings(pp.CustomData),
			CreatedAt: parsePaddleTime(pp.CreatedAt),
			UpdatedAt: parsePaddleTime(pp.UpdatedAt),
		}
		if amount, err := parseMinorUnits(pp.UnitPrice.Amount); err == nil {
			price.UnitAmount = &amount
		}
		if pp.BillingCycle != nil {
			price.Type = "recurring"
			price.Interval = string(pp.BillingCycle.Interval)
			count := int64(pp.BillingCycle.Frequency)
			price.IntervalCount = &count
		}
		if pp.TrialPeriod != nil && string(pp.TrialPeriod.Interval) == "day" {
			days := int64(pp.TrialPeriod.Frequency)
			price.TrialPeriodDays = &days
		}
		prices = append(prices, price)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate paddle prices: %w", err)
	}
	return prices, nil
}

func (p *PaddleProvider) ListCustomerSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	res, err := p.client.SubscriptionsClient.ListSubscriptions(ctx, &paddle.ListSubscriptionsRequest{
		CustomerID: []string{customerID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list paddle subscriptions: %w", err)
	}

	var subs []Subscription
	err = res.Iter(ctx, func(ps *paddle.Subscription) (bool, error) {
		sub := Subscription{
			ID:         ps.ID,
			CustomerID: ps.CustomerID,
			Status:     normalisePaddleStatus(string(ps.Status)),
			Metadata:   customDataStrings(ps.CustomData),
			CreatedAt:  parsePaddleTime(ps.CreatedAt),
			UpdatedAt:  parsePaddleTime(ps.UpdatedAt),
		}
		if ps.CanceledAt != nil {
			t := parsePaddleTime(*ps.CanceledAt)
			sub.CanceledAt = &t
		}
		if ps.CurrentBillingPeriod != nil {
			sub.CurrentPeriodStart = parsePaddleTime(ps.CurrentBillingPeriod.StartsAt)
			sub.CurrentPeriodEnd = parsePaddleTime(ps.CurrentBillingPeriod.EndsAt)
		}
		if ps.ScheduledChange != nil && string(ps.ScheduledChange.Action) == "cancel" {
			sub.CancelAtPeriodEnd = true
		}
		if len(ps.Items) > 0 {
			sub.PriceID = ps.Items[0].Price.ID
			sub.ProductID = ps.Items[0].Price.ProductID
		}
		subs = append(subs, sub)
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate paddle subscriptions: %w", err)
	}
	return subs, nil
}

func (p *PaddleProvider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	customData := make(paddle.CustomData, len(metadata))
	for k, v := range metadata {
		customData[k] = v
	}

	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email:      email,
		CustomData: customData,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a draft transaction and returns its hosted checkout URL.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{"user_id": req.UserID},
	}
	if req.CustomerID != "" {
		transactionReq.CustomerID = paddle.PtrTo(req.CustomerID)
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{
		ID:        transaction.ID,
		URL:       *transaction.Checkout.URL,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) CreatePortalSession(ctx context.Context, customerID, _ string) (*PortalSession, error) {
	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}
	if session.URLs.General.Overview == "" {
		return nil, ErrNoPortalURL
	}
	return &PortalSession{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// ParseWebhook verifies the Paddle-Signature header and normalises the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return nil, ErrWebhookVerificationFailed
	}
	return normalisePaddleEvent(payload)
}

type paddleEventPayload struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type paddleSubscriptionPayload struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CreatedAt            string         `json:"created_at"`
	CanceledAt           *string        `json:"canceled_at"`
	CustomData           map[string]any `json:"custom_data"`
	CurrentBillingPeriod *struct {
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
	} `json:"current_billing_period"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID        string `json:"id"`
			ProductID string `json:"product_id"`
		} `json:"price"`
	} `json:"items"`
}

type paddleTransactionPayload struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	CustomerID string         `json:"customer_id"`
	CustomData map[string]any `json:"custom_data"`
	CreatedAt  string         `json:"created_at"`
	Details    struct {
		Totals struct {
			GrandTotal   string `json:"grand_total"`
			CurrencyCode string `json:"currency_code"`
		} `json:"totals"`
	} `json:"details"`
	Items []struct {
		Price struct {
			ProductID   string `json:"product_id"`
			Description string `json:"description"`
		} `json:"price"`
	} `json:"items"`
}

func normalisePaddleEvent(payload []byte) (*WebhookEvent, error) {
	var pe paddleEventPayload
	if err := json.Unmarshal(payload, &pe); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &WebhookEvent{ID: pe.EventID, ProviderEvent: pe.EventType}

	switch {
	case strings.HasPrefix(pe.EventType, "subscription."):
		var data paddleSubscriptionPayload
		if err := json.Unmarshal(pe.Data, &data); err != nil {
			return nil, fmt.Errorf("decode paddle subscription: %w", err)
		}
		event.Type = EventSubscriptionUpdated
		switch pe.EventType {
		case "subscription.created":
			event.Type = EventSubscriptionCreated
		case "subscription.canceled":
			event.Type = EventSubscriptionDeleted
		}
		event.CustomerID = data.CustomerID
		event.Subscription = data.subscription()
		event.UserID = event.Subscription.UserID

	case pe.EventType == "transaction.completed", pe.EventType == "transaction.payment_failed":
		var data paddleTransactionPayload
		if err := json.Unmarshal(pe.Data, &data); err != nil {
			return nil, fmt.Errorf("decode paddle transaction: %w", err)
		}
		event.Type = EventPaymentSucceeded
		if pe.EventType == "transaction.payment_failed" {
			event.Type = EventPaymentFailed
		}
		event.CustomerID = data.CustomerID
		event.Payment = data.payment()
		event.UserID = event.Payment.UserID

	case strings.HasPrefix(pe.EventType, "product."), strings.HasPrefix(pe.EventType, "price."):
		event.Type = EventCatalogChanged
	}

	return event, nil
}

func (s paddleSubscriptionPayload) subscription() *Subscription {
	metadata := customDataStrings(s.CustomData)
	sub := &Subscription{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Status:     normalisePaddleStatus(s.Status),
		Metadata:   metadata,
		CreatedAt:  parsePaddleTime(s.CreatedAt),
		UserID:     metadata["user_id"],
	}
	if s.CanceledAt != nil {
		t := parsePaddleTime(*s.CanceledAt)
		sub.CanceledAt = &t
	}
	if s.CurrentBillingPeriod != nil {
		sub.CurrentPeriodStart = parsePaddleTime(s.CurrentBillingPeriod.StartsAt)
		sub.CurrentPeriodEnd = parsePaddleTime(s.CurrentBillingPeriod.EndsAt)
	}
	if s.ScheduledChange != nil && s.ScheduledChange.Action == "cancel" {
		sub.CancelAtPeriodEnd = true
	}
	if len(s.Items) > 0 {
		sub.PriceID = s.Items[0].Price.ID
		sub.ProductID = s.Items[0].Price.ProductID
	}
	return sub
}

func (t paddleTransactionPayload) payment() *Payment {
	metadata := customDataStrings(t.CustomData)
	payment := &Payment{
		ProviderPaymentID: t.ID,
		Currency:          strings.ToLower(t.Details.Totals.CurrencyCode),
		Status:            t.Status,
		CreatedAt:         parsePaddleTime(t.CreatedAt),
		UserID:            metadata["user_id"],
	}
	if amount, err := parseMinorUnits(t.Details.Totals.GrandTotal); err == nil {
		payment.Amount = amount
	}
	if len(t.Items) > 0 {
		payment.Description = t.Items[0].Price.Description
		if id := t.Items[0].Price.ProductID; id != "" {
			payment.ProductID = &id
		}
	}
	return payment
}

// normalisePaddleStatus maps Paddle's spelling onto the shared status values.
func normalisePaddleStatus(status string) string {
	switch strings.ToLower(status) {
	case "cancelled":
		return StatusCanceled
	default:
		return strings.ToLower(status)
	}
}

func customDataStrings(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			raw, err := json.Marshal(val)
			if err == nil {
				out[k] = string(raw)
			}
		}
	}
	return out
}

// parseMinorUnits parses Paddle's string amounts, already in the smallest currency unit.
func parseMinorUnits(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parsePaddleTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
