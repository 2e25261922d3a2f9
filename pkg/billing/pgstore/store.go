// Package pgstore implements billing.Store on PostgreSQL.
package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/launchpad/pkg/billing"
	"github.com/dmitrymomot/launchpad/pkg/pg"
)

// Store is a billing.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ billing.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithClock overrides the time source used for updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store. Panics if pool is nil.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	s := &Store{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const userColumns = `id, email, name, role::text, membership_status::text, tokens, tokens_expires_at, product_id, created_at, updated_at`

func scanUser(row pgx.Row) (*billing.User, error) {
	var (
		u            billing.User
		role, status string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &status, &u.Tokens, &u.TokensExpiresAt, &u.ProductID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = billing.Role(role)
	u.MembershipStatus = billing.MembershipStatus(status)
	return &u, nil
}

// PutUser inserts or replaces a user row. Empty role and status default to
// USER and INACTIVE.
func (s *Store) PutUser(ctx context.Context, u billing.User) error {
	if u.Role == "" {
		u.Role = billing.RoleUser
	}
	if u.MembershipStatus == "" {
		u.MembershipStatus = billing.MembershipInactive
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, membership_status, tokens, tokens_expires_at, product_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4::text::user_role, $5::text::membership_status, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			membership_status = EXCLUDED.membership_status,
			tokens = EXCLUDED.tokens,
			tokens_expires_at = EXCLUDED.tokens_expires_at,
			product_id = EXCLUDED.product_id,
			updated_at = EXCLUDED.updated_at`,
		u.ID, u.Email, u.Name, string(u.Role), string(u.MembershipStatus), u.Tokens, u.TokensExpiresAt, u.ProductID, u.CreatedAt, now,
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) SetTokens(ctx context.Context, userID string, tokens int64, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET tokens = $2, tokens_expires_at = $3, updated_at = $4 WHERE id = $1`,
		userID, tokens, expiresAt, s.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrUserNotFound
	}
	return nil
}

// DecrementTokens relies on the row lock taken by UPDATE so concurrent
// consumers cannot overdraw the balance.
func (s *Store) DecrementTokens(ctx context.Context, userID string, amount int64, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET tokens = tokens - $2, updated_at = $4
		WHERE id = $1 AND tokens >= $2 AND tokens_expires_at >= $3`,
		userID, amount, now, s.now(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateMembership(ctx context.Context, userID string, upd billing.MembershipUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			product_id = $2,
			membership_status = $3::text::membership_status,
			role = $4::text::user_role,
			updated_at = $5
		WHERE id = $1`,
		userID, upd.ProductID, string(upd.Status), string(upd.Role), s.now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrUserNotFound
	}
	return nil
}

func (s *Store) ApplyAdminUpdate(ctx context.Context, upd billing.AdminUserUpdate) (*billing.User, error) {
	var role *string
	if upd.Role != nil {
		r := string(*upd.Role)
		role = &r
	}
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET
			role = COALESCE($2::text::user_role, role),
			tokens = COALESCE($3, tokens),
			tokens_expires_at = COALESCE($4, tokens_expires_at),
			updated_at = $5
		WHERE id = $1
		RETURNING `+userColumns,
		upd.UserID, role, upd.Tokens, upd.TokensExpiresAt, s.now(),
	))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]billing.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []billing.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// WithinTx runs fn inside a transaction; any error from fn rolls it back.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, w billing.CatalogWriter) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, catalogWriter{tx: tx, now: s.now})
	})
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*billing.Product, error) {
	var p billing.Product
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, active, metadata, created_at, updated_at FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListActiveProducts(ctx context.Context) ([]billing.ProductWithPrices, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, active, metadata, created_at, updated_at
		FROM products WHERE active ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.ProductWithPrices, error) {
		item := billing.ProductWithPrices{Prices: []billing.Price{}}
		err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Active, &item.Metadata, &item.CreatedAt, &item.UpdatedAt)
		return item, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT `+priceColumns+` FROM prices
		WHERE active ORDER BY product_id, COALESCE(unit_amount, 0), id`)
	if err != nil {
		return nil, err
	}
	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Price, error) {
		return scanPrice(row)
	})
	if err != nil {
		return nil, err
	}

	byProduct := make(map[string]int, len(products))
	for i, p := range products {
		byProduct[p.ID] = i
	}
	for _, price := range prices {
		if i, ok := byProduct[price.ProductID]; ok {
			products[i].Prices = append(products[i].Prices, price)
		}
	}
	return products, nil
}

const priceColumns = `id, product_id, active, currency, type, unit_amount, billing_interval, interval_count, trial_period_days, metadata, created_at, updated_at`

func scanPrice(row pgx.Row) (billing.Price, error) {
	var p billing.Price
	err := row.Scan(&p.ID, &p.ProductID, &p.Active, &p.Currency, &p.Type, &p.UnitAmount,
		&p.Interval, &p.IntervalCount, &p.TrialPeriodDays, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const subscriptionColumns = `id, user_id, customer_id, price_id, product_id, status,
	current_period_start, current_period_end, cancel_at_period_end, canceled_at,
	trial_start, trial_end, metadata, created_at, updated_at`

func (s *Store) ListActiveSubscriptions(ctx context.Context, userID string) ([]billing.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Subscription, error) {
		var (
			sub        billing.Subscription
			start, end *time.Time
		)
		err := row.Scan(&sub.ID, &sub.UserID, &sub.CustomerID, &sub.PriceID, &sub.ProductID, &sub.Status,
			&start, &end, &sub.CancelAtPeriodEnd, &sub.CanceledAt,
			&sub.TrialStart, &sub.TrialEnd, &sub.Metadata, &sub.CreatedAt, &sub.UpdatedAt)
		if start != nil {
			sub.CurrentPeriodStart = *start
		}
		if end != nil {
			sub.CurrentPeriodEnd = *end
		}
		return sub, err
	})
}

// UpsertSubscription keeps the original created_at of an existing row.
func (s *Store) UpsertSubscription(ctx context.Context, sub billing.Subscription) error {
	now := s.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			customer_id = EXCLUDED.customer_id,
			price_id = EXCLUDED.price_id,
			product_id = EXCLUDED.product_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.CustomerID, sub.PriceID, sub.ProductID, sub.Status,
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.TrialStart, sub.TrialEnd, metadata(sub.Metadata), sub.CreatedAt, now,
	)
	return err
}

func (s *Store) CountActiveSubscriptions(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM subscriptions WHERE status IN ('active', 'trialing')`,
	).Scan(&n)
	return n, err
}

const customerColumns = `id, user_id, provider_customer_id, created_at, updated_at`

func (s *Store) getCustomer(ctx context.Context, where string, arg string) (*billing.Customer, error) {
	var c billing.Customer
	err := s.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM billing_customers WHERE `+where+` = $1`, arg).
		Scan(&c.ID, &c.UserID, &c.ProviderCustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCustomerByUser(ctx context.Context, userID string) (*billing.Customer, error) {
	return s.getCustomer(ctx, "user_id", userID)
}

func (s *Store) GetCustomerByProviderID(ctx context.Context, providerCustomerID string) (*billing.Customer, error) {
	return s.getCustomer(ctx, "provider_customer_id", providerCustomerID)
}

// CreateCustomer replaces any existing mapping for the user.
func (s *Store) CreateCustomer(ctx context.Context, c billing.Customer) error {
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			provider_customer_id = EXCLUDED.provider_customer_id,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.UserID, c.ProviderCustomerID, c.CreatedAt, now,
	)
	switch {
	case pg.IsDuplicateKeyError(err):
		return billing.ErrCustomerConflict
	case pg.IsForeignKeyViolationError(err):
		return billing.ErrUserNotFound
	}
	return err
}

func (s *Store) RecordPayment(ctx context.Context, p billing.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (id, user_id, provider_payment_id, amount, currency, status, product_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_payment_id) DO NOTHING`,
		p.ID, p.UserID, p.ProviderPaymentID, p.Amount, p.Currency, p.Status, p.ProductID, p.Description, p.CreatedAt,
	)
	return err
}

func (s *Store) TotalRevenue(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(sum(amount), 0)::bigint FROM payments`).Scan(&total)
	return total, err
}

type catalogWriter struct {
	tx  pgx.Tx
	now func() time.Time
}

func (w catalogWriter) DeactivateProducts(ctx context.Context) error {
	_, err := w.tx.Exec(ctx, `UPDATE products SET active = FALSE, updated_at = $1 WHERE active`, w.now())
	return err
}

func (w catalogWriter) DeactivatePrices(ctx context.Context) error {
	_, err := w.tx.Exec(ctx, `UPDATE prices SET active = FALSE, updated_at = $1 WHERE active`, w.now())
	return err
}

func (w catalogWriter) UpsertProduct(ctx context.Context, p billing.Product) error {
	now := w.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := w.tx.Exec(ctx, `
		INSERT INTO products (id, name, description, active, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Active, metadata(p.Metadata), p.CreatedAt, now,
	)
	return err
}

func (w catalogWriter) UpsertPrice(ctx context.Context, p billing.Price) error {
	now := w.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err := w.tx.Exec(ctx, `
		INSERT INTO prices (`+priceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			active = EXCLUDED.active,
			currency = EXCLUDED.currency,
			type = EXCLUDED.type,
			unit_amount = EXCLUDED.unit_amount,
			billing_interval = EXCLUDED.billing_interval,
			interval_count = EXCLUDED.interval_count,
			trial_period_days = EXCLUDED.trial_period_days,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.ProductID, p.Active, p.Currency, p.Type, p.UnitAmount,
		p.Interval, p.IntervalCount, p.TrialPeriodDays, metadata(p.Metadata), p.CreatedAt, now,
	)
	return err
}

// metadata avoids writing SQL NULL into NOT NULL jsonb columns.
func metadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
