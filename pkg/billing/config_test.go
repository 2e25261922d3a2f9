package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchpad/pkg/billing"
)

func TestConfig_RedirectURLs(t *testing.T) {
	t.Parallel()

	cfg := billing.Config{AppURL: "https://app.test"}
	assert.Equal(t, "https://app.test/dashboard?success=true", cfg.CheckoutSuccessURL())
	assert.Equal(t, "https://app.test/pricing?canceled=true", cfg.CheckoutCancelURL())

	cfg.SuccessURL = "https://app.test/thanks"
	cfg.CancelURL = "https://app.test/back"
	assert.Equal(t, "https://app.test/thanks", cfg.CheckoutSuccessURL())
	assert.Equal(t, "https://app.test/back", cfg.CheckoutCancelURL())
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	stripeCfg := billing.StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec"}

	p, err := billing.NewProvider(billing.Config{Provider: "stripe"}, stripeCfg, billing.PaddleConfig{})
	require.NoError(t, err)
	assert.IsType(t, &billing.StripeProvider{}, p)

	_, err = billing.NewProvider(billing.Config{Provider: "paddle"}, stripeCfg, billing.PaddleConfig{})
	assert.ErrorIs(t, err, billing.ErrMissingAPIKey)

	_, err = billing.NewProvider(billing.Config{Provider: "paddle"}, stripeCfg, billing.PaddleConfig{
		APIKey: "key", WebhookSecret: "secret", Environment: "staging",
	})
	assert.ErrorIs(t, err, billing.ErrInvalidProviderEnvironment)

	_, err = billing.NewProvider(billing.Config{Provider: "lemonsqueezy"}, stripeCfg, billing.PaddleConfig{})
	assert.ErrorIs(t, err, billing.ErrUnknownProvider)
}
