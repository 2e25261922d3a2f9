package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchpad/handler"
	core "github.com/dmitrymomot/launchpad/pkg/billing"
	"github.com/dmitrymomot/launchpad/pkg/jwt"
)

// MaxWebhookBodySize caps provider webhook payloads.
const MaxWebhookBodySize = 1 << 20

// Signature headers of the supported providers.
const (
	StripeSignatureHeader = "Stripe-Signature"
	PaddleSignatureHeader = "Paddle-Signature"
)

// UserIDFunc returns the authenticated user id, or "" for anonymous requests.
type UserIDFunc func(ctx context.Context) string

// Service serves the /billing routes.
type Service struct {
	catalog  *core.CatalogSyncer
	ledger   *core.Ledger
	checkout *core.Checkout
	webhooks *core.WebhookProcessor
	users    core.UserStore
	userID   UserIDFunc
	logger   *slog.Logger
}

// Option configures Service and AdminService.
type Option func(*options)

type options struct {
	userID UserIDFunc
	logger *slog.Logger
}

// WithUserIDFunc replaces the JWT subject lookup.
func WithUserIDFunc(fn UserIDFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.userID = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{userID: jwt.UserIDFromContext, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewService panics if any dependency is nil.
func NewService(
	catalog *core.CatalogSyncer,
	ledger *core.Ledger,
	checkout *core.Checkout,
	webhooks *core.WebhookProcessor,
	users core.UserStore,
	opts ...Option,
) *Service {
	if catalog == nil || ledger == nil || checkout == nil || webhooks == nil || users == nil {
		panic("billing module: all dependencies are required")
	}
	o := buildOptions(opts)
	return &Service{
		catalog:  catalog,
		ledger:   ledger,
		checkout: checkout,
		webhooks: webhooks,
		users:    users,
		userID:   o.userID,
		logger:   o.logger,
	}
}

func (s *Service) wrapOpts(binders ...handler.Bind) []handler.WrapOption {
	return []handler.WrapOption{
		handler.WithBinders(binders...),
		handler.WithErrorMapper(mapError),
		handler.WithLogger(s.logger),
	}
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", handler.Wrap(s.products, s.wrapOpts()...))
	r.Get("/tiers", handler.Wrap(s.tiers, s.wrapOpts()...))
	r.Post("/webhook", s.webhook)

	r.Route("/me", func(r chi.Router) {
		r.Get("/access", handler.Wrap(s.access, s.wrapOpts()...))
		r.Get("/tokens", handler.Wrap(s.balance, s.wrapOpts()...))
		r.Post("/tokens/consume", handler.Wrap(s.consume, s.wrapOpts(handler.JSONBody(0))...))
	})

	r.Post("/checkout", handler.Wrap(s.startCheckout, s.wrapOpts(handler.JSONBody(0))...))
	r.Post("/portal", handler.Wrap(s.portal, s.wrapOpts(handler.JSONBody(0), handler.Query())...))

	return r
}

func (s *Service) products(r *http.Request, _ struct{}) handler.Response {
	products := s.catalog.ActiveProducts(r.Context(), true)
	return handler.JSON(newProductViews(products))
}

func (s *Service) tiers(r *http.Request, _ struct{}) handler.Response {
	return handler.JSON(s.catalog.Tiers(r.Context(), true))
}

func (s *Service) access(r *http.Request, _ struct{}) handler.Response {
	userID := s.userID(r.Context())
	if userID == "" {
		return handler.JSONError(core.ErrUnauthorized)
	}
	access, err := s.ledger.CheckAccess(r.Context(), userID, true)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(accessView{
		HasAccess:    access.HasAccess,
		IsAdmin:      access.User.IsAdmin(),
		Subscription: newSubscriptionView(access.Subscription),
		User:         newUserView(access.User),
	})
}

func (s *Service) balance(r *http.Request, _ struct{}) handler.Response {
	userID := s.userID(r.Context())
	if userID == "" {
		return handler.JSONError(core.ErrUnauthorized)
	}
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(balance)
}

// consumeRequest spends one token when amount is omitted.
type consumeRequest struct {
	Amount *int64 `json:"amount"`
}

func (r consumeRequest) amount() int64 {
	if r.Amount == nil {
		return 1
	}
	return *r.Amount
}

type consumeResponse struct {
	Consumed bool              `json:"consumed"`
	Balance  core.TokenBalance `json:"balance"`
}

func (s *Service) consume(r *http.Request, req consumeRequest) handler.Response {
	userID := s.userID(r.Context())
	if userID == "" {
		return handler.JSONError(core.ErrUnauthorized)
	}
	ok, err := s.ledger.ConsumeTokens(r.Context(), userID, req.amount())
	if err != nil {
		return handler.JSONError(err)
	}
	if !ok {
		return handler.JSONError(handler.ErrPaymentRequired.WithMessage("insufficient tokens"))
	}
	balance, err := s.ledger.Balance(r.Context(), userID)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(consumeResponse{Consumed: true, Balance: balance})
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

func (s *Service) startCheckout(r *http.Request, req checkoutRequest) handler.Response {
	userID := s.userID(r.Context())
	if userID == "" {
		return handler.JSONError(core.ErrUnauthorized)
	}
	if req.PriceID == "" {
		return handler.JSONError(handler.ValidationError{"price_id": {"is required"}})
	}
	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		return handler.JSONError(err)
	}
	session, err := s.checkout.Checkout(r.Context(), user, req.PriceID)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(session)
}

type portalRequest struct {
	ReturnURL string `json:"return_url" query:"return_url"`
}

func (s *Service) portal(r *http.Request, req portalRequest) handler.Response {
	userID := s.userID(r.Context())
	if userID == "" {
		return handler.JSONError(core.ErrUnauthorized)
	}
	session, err := s.checkout.Portal(r.Context(), userID, req.ReturnURL)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(session)
}

// webhook acknowledges with 200 once the event is applied. Signature failures
// answer 400 so the provider does not retry; processing failures answer 500
// so it does.
func (s *Service) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render(w, r, handler.JSONError(handler.ErrPayloadTooLarge))
			return
		}
		render(w, r, handler.JSONError(handler.ErrBadRequest))
		return
	}

	signature := r.Header.Get(StripeSignatureHeader)
	if signature == "" {
		signature = r.Header.Get(PaddleSignatureHeader)
	}
	if signature == "" {
		render(w, r, handler.JSONError(handler.ErrBadRequest.WithMessage("missing webhook signature")))
		return
	}

	if err := s.webhooks.Handle(r.Context(), payload, signature); err != nil {
		if errors.Is(err, core.ErrWebhookVerificationFailed) {
			s.logger.WarnContext(r.Context(), "webhook rejected", slog.Any("error", err))
			render(w, r, handler.JSONError(handler.ErrBadRequest.WithMessage("invalid webhook signature")))
			return
		}
		render(w, r, handler.JSONError(handler.ErrInternalServerError.WithMessage("webhook processing failed")))
		return
	}
	render(w, r, handler.JSON(map[string]bool{"received": true}))
}

func render(w http.ResponseWriter, r *http.Request, resp handler.Response) {
	_ = resp.Render(w, r)
}
