package billing

import "time"

const (
	// DefaultSyncWindow is the minimum time between two catalog syncs.
	DefaultSyncWindow = 5 * time.Minute
	// DefaultGrantPeriod is how long a token allocation stays valid.
	DefaultGrantPeriod = 30 * 24 * time.Hour
)

// Provider names accepted by Config.Provider.
const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)

// Config holds the entitlement settings read from the environment.
type Config struct {
	Provider   string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	SyncWindow time.Duration `env:"BILLING_SYNC_WINDOW" envDefault:"5m"`
	// GrantPeriod is independent of the provider's billing period.
	GrantPeriod time.Duration `env:"BILLING_GRANT_PERIOD" envDefault:"720h"`
	// Reconcile enables per-user provider reconciliation before resolving subscriptions.
	Reconcile bool `env:"BILLING_RECONCILE" envDefault:"true"`

	SyncLockKey string `env:"BILLING_SYNC_LOCK_KEY" envDefault:"billing:catalog:last_sync"`

	AppURL     string `env:"APP_URL" envDefault:"http://localhost:8080"`
	SuccessURL string `env:"BILLING_SUCCESS_URL"`
	CancelURL  string `env:"BILLING_CANCEL_URL"`
}

// CheckoutSuccessURL falls back to the dashboard of AppURL.
func (c Config) CheckoutSuccessURL() string {
	if c.SuccessURL != "" {
		return c.SuccessURL
	}
	return c.AppURL + "/dashboard?success=true"
}

// CheckoutCancelURL falls back to the pricing page of AppURL.
func (c Config) CheckoutCancelURL() string {
	if c.CancelURL != "" {
		return c.CancelURL
	}
	return c.AppURL + "/pricing?canceled=true"
}
