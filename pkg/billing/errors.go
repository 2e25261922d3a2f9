package billing

import "errors"

var (
	ErrUserNotFound         = errors.New("billing: user not found")
	ErrProductNotFound      = errors.New("billing: product not found")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrCustomerNotFound     = errors.New("billing: customer not found")
	ErrNoBillingAccount     = errors.New("billing: no billing account for user")
	ErrCustomerConflict     = errors.New("billing: provider customer is linked to another user")

	ErrInvalidTokenAmount = errors.New("billing: token amount must be positive")
	ErrRefillNotSettled   = errors.New("billing: token refill did not settle after allocation")

	// Administrative input validation
	ErrMissingUserID  = errors.New("billing: user ID is required")
	ErrInvalidRole    = errors.New("billing: invalid role")
	ErrNegativeTokens = errors.New("billing: token count must not be negative")
	ErrNoUpdates      = errors.New("billing: no valid updates provided")

	ErrUnauthorized = errors.New("billing: unauthenticated")
	ErrForbidden    = errors.New("billing: forbidden")

	ErrMissingPriceID  = errors.New("billing: price ID is required")
	ErrMissingEmail    = errors.New("billing: email is required for checkout")
	ErrProviderError   = errors.New("billing: provider error")
	ErrCatalogSync     = errors.New("billing: catalog sync failed")
	ErrStoreFailure    = errors.New("billing: store failure")
	ErrUnknownCustomer = errors.New("billing: webhook references unknown customer")

	// Provider-specific configuration errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrUnknownProvider            = errors.New("unknown billing provider")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL                = errors.New("no portal URL returned from provider")
)
