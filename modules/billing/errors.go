package billing

import (
	"errors"

	"github.com/dmitrymomot/launchpad/handler"
	core "github.com/dmitrymomot/launchpad/pkg/billing"
)

// mapError translates entitlement errors into HTTP errors.
func mapError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return handler.ErrUnauthorized, true
	case errors.Is(err, core.ErrForbidden):
		return handler.ErrForbidden, true
	case errors.Is(err, core.ErrUserNotFound):
		return handler.ErrNotFound.WithMessage("user not found"), true
	case errors.Is(err, core.ErrNoBillingAccount):
		return handler.ErrNotFound.WithMessage("no billing account found"), true
	case errors.Is(err, core.ErrCustomerConflict):
		return handler.ErrConflict.WithMessage("billing account is linked to another user"), true
	case errors.Is(err, core.ErrWebhookVerificationFailed):
		return handler.ErrBadRequest.WithMessage("invalid webhook signature"), true
	case errors.Is(err, core.ErrMissingUserID),
		errors.Is(err, core.ErrInvalidRole),
		errors.Is(err, core.ErrNegativeTokens),
		errors.Is(err, core.ErrNoUpdates),
		errors.Is(err, core.ErrInvalidTokenAmount),
		errors.Is(err, core.ErrMissingPriceID),
		errors.Is(err, core.ErrMissingEmail):
		return handler.ErrBadRequest.WithMessage(trimPrefix(err)), true
	case errors.Is(err, core.ErrProviderError):
		return handler.ErrBadGateway.WithMessage("billing provider request failed"), true
	}
	return handler.HTTPError{}, false
}

// trimPrefix drops the package prefix of the first sentinel in err.
func trimPrefix(err error) string {
	msg := err.Error()
	const prefix = "billing: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		msg = msg[len(prefix):]
	}
	return msg
}
