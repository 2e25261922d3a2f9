package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// WebhookStore is the persistence the WebhookProcessor writes to.
type WebhookStore interface {
	SubscriptionStore
	CustomerStore
	PaymentStore
}

// WebhookProcessor applies provider events to local state.
// Webhooks are the primary source of subscription updates.
type WebhookProcessor struct {
	hosted  CheckoutProvider
	store   WebhookStore
	ledger  *Ledger
	catalog *CatalogSyncer
	logger  *slog.Logger
	now     func() time.Time
}

// WebhookOption configures a WebhookProcessor.
type WebhookOption func(*WebhookProcessor)

// WithWebhookLogger sets the logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *WebhookProcessor) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWebhookClock overrides time.Now.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(w *WebhookProcessor) {
		if clock != nil {
			w.now = clock
		}
	}
}

// NewWebhookProcessor creates a processor. Panics if any dependency is nil.
func NewWebhookProcessor(hosted CheckoutProvider, store WebhookStore, ledger *Ledger, catalog *CatalogSyncer, opts ...WebhookOption) *WebhookProcessor {
	if hosted == nil {
		panic("billing: CheckoutProvider is required")
	}
	if store == nil {
		panic("billing: WebhookStore is required")
	}
	if ledger == nil {
		panic("billing: Ledger is required")
	}
	if catalog == nil {
		panic("billing: CatalogSyncer is required")
	}

	w := &WebhookProcessor{
		hosted:  hosted,
		store:   store,
		ledger:  ledger,
		catalog: catalog,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle verifies and applies one webhook delivery. Events for customers
// unknown to this application are acknowledged and ignored.
func (w *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := w.hosted.ParseWebhook(ctx, payload, signature)
	if err != nil {
		WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return errors.Join(ErrWebhookVerificationFailed, err)
	}
	if event == nil || event.Type == "" {
		return nil
	}

	err = w.apply(ctx, event)
	switch {
	case errors.Is(err, ErrUnknownCustomer):
		WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		w.logger.WarnContext(ctx, "webhook for unknown customer ignored",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.ProviderEvent),
			slog.String("customer_id", event.CustomerID),
		)
		return nil
	case err != nil:
		WebhookEventsTotal.WithLabelValues(string(event.Type), "failure").Inc()
		w.logger.ErrorContext(ctx, "failed to process webhook",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.ProviderEvent),
			slog.Any("error", err),
		)
		return err
	}

	WebhookEventsTotal.WithLabelValues(string(event.Type), "success").Inc()
	return nil
}

func (w *WebhookProcessor) apply(ctx context.Context, event *WebhookEvent) error {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return w.subscriptionChanged(ctx, event)
	case EventSubscriptionDeleted:
		return w.subscriptionDeleted(ctx, event)
	case EventPaymentSucceeded:
		return w.paymentSucceeded(ctx, event)
	case EventPaymentFailed:
		w.logger.WarnContext(ctx, "payment failed",
			slog.String("event_id", event.ID),
			slog.String("customer_id", event.CustomerID),
		)
		return nil
	case EventCatalogChanged:
		w.catalog.Sync(ctx, true)
		return nil
	default:
		return nil
	}
}

// userFor resolves the local user of an event, preferring the id echoed in
// provider metadata over the customer mapping. Ids that do not name an
// existing user are skipped, so nothing is written for unknown users.
func (w *WebhookProcessor) userFor(ctx context.Context, event *WebhookEvent, hint string) (string, error) {
	for _, id := range []string{hint, event.UserID} {
		if id == "" {
			continue
		}
		ok, err := w.userExists(ctx, id)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}
	}
	if event.CustomerID == "" {
		return "", ErrUnknownCustomer
	}

	customer, err := w.store.GetCustomerByProviderID(ctx, event.CustomerID)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return "", ErrUnknownCustomer
		}
		return "", errors.Join(ErrStoreFailure, err)
	}
	ok, err := w.userExists(ctx, customer.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrUnknownCustomer
	}
	return customer.UserID, nil
}

func (w *WebhookProcessor) userExists(ctx context.Context, userID string) (bool, error) {
	_, err := w.ledger.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound):
		return false, nil
	default:
		return false, errors.Join(ErrStoreFailure, err)
	}
}

// syncMembership derives membership from the user's resolved subscription so
// an event for one subscription cannot contradict another that still grants
// access. The event's own status applies only when nothing resolves.
func (w *WebhookProcessor) syncMembership(ctx context.Context, userID string, productID *string, status MembershipStatus) error {
	resolved, err := w.ledger.resolver.Resolve(ctx, userID, false)
	if err != nil {
		return err
	}
	if resolved != nil {
		productID = nil
		if resolved.ProductID != "" {
			productID = &resolved.ProductID
		}
		status = MembershipActive
	}
	return w.ledger.UpdateMembership(ctx, userID, productID, status)
}

func (w *WebhookProcessor) subscriptionChanged(ctx context.Context, event *WebhookEvent) error {
	sub := event.Subscription
	if sub == nil {
		return nil
	}

	userID, err := w.userFor(ctx, event, sub.UserID)
	if err != nil {
		return err
	}
	sub.UserID = userID
	if sub.CustomerID == "" {
		sub.CustomerID = event.CustomerID
	}

	if err := w.store.UpsertSubscription(ctx, *sub); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	status := MembershipStatusFor(sub.Status)
	var productID *string
	if (status == MembershipActive || status == MembershipPastDue) && sub.ProductID != "" {
		productID = &sub.ProductID
	}
	if err := w.syncMembership(ctx, userID, productID, status); err != nil {
		return err
	}

	if event.Type == EventSubscriptionCreated && sub.GrantsAccess() && sub.ProductID != "" {
		if _, err := w.ledger.AllocateTokens(ctx, userID, sub.ProductID); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "subscription synced from webhook",
		slog.String("user_id", userID),
		slog.String("subscription_id", sub.ID),
		slog.String("status", sub.Status),
	)
	return nil
}

func (w *WebhookProcessor) subscriptionDeleted(ctx context.Context, event *WebhookEvent) error {
	sub := event.Subscription
	if sub == nil {
		return nil
	}

	userID, err := w.userFor(ctx, event, sub.UserID)
	if err != nil {
		return err
	}
	sub.UserID = userID
	if sub.CustomerID == "" {
		sub.CustomerID = event.CustomerID
	}
	sub.Status = StatusCanceled
	if sub.CanceledAt == nil {
		now := w.now()
		sub.CanceledAt = &now
	}

	if err := w.store.UpsertSubscription(ctx, *sub); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return w.syncMembership(ctx, userID, nil, MembershipCanceled)
}

func (w *WebhookProcessor) paymentSucceeded(ctx context.Context, event *WebhookEvent) error {
	payment := event.Payment
	if payment == nil || payment.ProviderPaymentID == "" {
		return nil
	}

	userID, err := w.userFor(ctx, event, payment.UserID)
	if err != nil {
		return err
	}
	payment.UserID = userID
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = w.now()
	}

	if err := w.store.RecordPayment(ctx, *payment); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}
