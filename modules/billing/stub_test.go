package billing_test

import (
	"context"
	"errors"
	"sync"
	"time"

	core "github.com/dmitrymomot/launchpad/pkg/billing"
)

const validSignature = "t=1,v1=valid"

// stubProvider is an in-memory billing provider. ParseWebhook accepts only
// validSignature and returns a copy of the queued event.
type stubProvider struct {
	mu        sync.Mutex
	products  []core.Product
	prices    []core.Price
	event     *core.WebhookEvent
	customers int
}

func (p *stubProvider) ListProducts(context.Context, bool) ([]core.Product, error) {
	return p.products, nil
}

func (p *stubProvider) ListPrices(context.Context, bool) ([]core.Price, error) {
	return p.prices, nil
}

func (p *stubProvider) ListCustomerSubscriptions(context.Context, string) ([]core.Subscription, error) {
	return nil, nil
}

func (p *stubProvider) CreateCustomer(context.Context, string, map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return "cus_stub", nil
}

func (p *stubProvider) CreateCheckoutSession(_ context.Context, req core.CheckoutRequest) (*core.CheckoutSession, error) {
	return &core.CheckoutSession{
		ID:        "cs_" + req.PriceID,
		URL:       "https://checkout.test/" + req.PriceID,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (p *stubProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (*core.PortalSession, error) {
	return &core.PortalSession{URL: "https://portal.test/" + customerID + "?return=" + returnURL}, nil
}

func (p *stubProvider) ParseWebhook(_ context.Context, _ []byte, signature string) (*core.WebhookEvent, error) {
	if signature != validSignature {
		return nil, errors.New("signature mismatch")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.event == nil {
		return &core.WebhookEvent{}, nil
	}
	event := *p.event
	if event.Subscription != nil {
		sub := *event.Subscription
		event.Subscription = &sub
	}
	return &event, nil
}

func (p *stubProvider) queue(event core.WebhookEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.event = &event
}
