// Package billing maps a billing provider's catalog and subscription state onto
// local user entitlements: role, membership status and a token balance with an
// expiry.
//
// # Components
//
//   - CatalogSyncer mirrors the provider's active products and prices. Syncs are
//     rate limited by a SyncGate and fail soft.
//   - Resolver picks the newest active or trialing subscription of a user,
//     optionally pulling the user's subscriptions from the provider first.
//   - Ledger derives the effective token balance, refills expired allocations
//     lazily, consumes tokens with a guarded decrement and keeps role and
//     membership in step with billing events.
//   - Admin overrides roles and balances for admins and serves dashboard data.
//   - Checkout opens hosted checkout and customer portal sessions.
//   - WebhookProcessor applies provider events to local state.
//
// Provider is the only contract the entitlement logic has with a vendor SDK.
// StripeProvider and PaddleProvider implement it together with CheckoutProvider.
// Persistence goes through the Store interfaces; MemoryStore serves tests and
// local development, package pgstore serves PostgreSQL.
//
// # Usage
//
//	provider, err := billing.NewProvider(cfg, stripeCfg, paddleCfg)
//	if err != nil {
//		return err
//	}
//	store := billing.NewMemoryStore()
//
//	catalog := billing.NewCatalogSyncer(provider, store)
//	resolver := billing.NewResolver(provider, store)
//	ledger := billing.NewLedger(store, resolver)
//
//	ok, err := ledger.ConsumeTokens(ctx, userID, 1)
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// insufficient or expired balance
//	}
//
// # Token lifecycle
//
// A balance is valid while TokensExpiresAt is in the future. Reading an expired
// balance of an ACTIVE member with an assigned product allocates the product's
// token grant for one grant period (30 days by default) and reads again.
// Allocation overwrites the balance; it never adds to it.
package billing
