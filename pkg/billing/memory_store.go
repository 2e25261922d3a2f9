package billing

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local development.
// All methods are safe for concurrent use and return copies.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]User
	products      map[string]Product
	prices        map[string]Price
	subscriptions map[string]Subscription
	customers     map[string]Customer // by user id
	payments      map[string]Payment  // by provider payment id
	now           func() time.Time
}

// NewMemoryStore returns an empty MemoryStore seeded with the given users.
func NewMemoryStore(users ...User) *MemoryStore {
	s := &MemoryStore{
		users:         make(map[string]User, len(users)),
		products:      make(map[string]Product),
		prices:        make(map[string]Price),
		subscriptions: make(map[string]Subscription),
		customers:     make(map[string]Customer),
		payments:      make(map[string]Payment),
		now:           time.Now,
	}
	for _, u := range users {
		s.PutUser(u)
	}
	return s
}

// PutUser inserts or replaces a user. Empty role and status default to USER and INACTIVE.
func (s *MemoryStore) PutUser(u User) {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.MembershipStatus == "" {
		u.MembershipStatus = MembershipInactive
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	s.mu.Lock()
	s.users[u.ID] = copyUser(u)
	s.mu.Unlock()
}

func copyUser(u User) User {
	if u.TokensExpiresAt != nil {
		t := *u.TokensExpiresAt
		u.TokensExpiresAt = &t
	}
	if u.ProductID != nil {
		p := *u.ProductID
		u.ProductID = &p
	}
	return u
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u = copyUser(u)
	return &u, nil
}

func (s *MemoryStore) SetTokens(_ context.Context, userID string, tokens int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Tokens = tokens
	u.TokensExpiresAt = &expiresAt
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) DecrementTokens(_ context.Context, userID string, amount int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	if u.Tokens < amount || u.TokensExpiresAt == nil || u.TokensExpiresAt.Before(now) {
		return false, nil
	}
	u.Tokens -= amount
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return true, nil
}

func (s *MemoryStore) UpdateMembership(_ context.Context, userID string, upd MembershipUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.ProductID = nil
	if upd.ProductID != nil {
		p := *upd.ProductID
		u.ProductID = &p
	}
	u.MembershipStatus = upd.Status
	u.Role = upd.Role
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) ApplyAdminUpdate(_ context.Context, upd AdminUserUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[upd.UserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Tokens != nil {
		u.Tokens = *upd.Tokens
	}
	if upd.TokensExpiresAt != nil {
		t := *upd.TokensExpiresAt
		u.TokensExpiresAt = &t
	}
	u.UpdatedAt = s.now()
	s.users[upd.UserID] = u
	u = copyUser(u)
	return &u, nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) ListUsers(_ context.Context, limit, offset int) ([]User, error) {
	s.mu.RLock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	s.mu.RUnlock()

	slices.SortFunc(users, func(a, b User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if offset >= len(users) {
		return []User{}, nil
	}
	users = users[offset:]
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users, nil
}

// WithinTx holds the write lock for the duration of fn and restores the
// catalog if fn fails. fn must only use the given writer.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w CatalogWriter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := maps.Clone(s.products)
	prices := maps.Clone(s.prices)
	if err := fn(ctx, memoryCatalogWriter{s}); err != nil {
		s.products = products
		s.prices = prices
		return err
	}
	return nil
}

// memoryCatalogWriter mutates the store while WithinTx holds its lock.
type memoryCatalogWriter struct{ s *MemoryStore }

func (w memoryCatalogWriter) DeactivateProducts(_ context.Context) error {
	now := w.s.now()
	for id, p := range w.s.products {
		p.Active = false
		p.UpdatedAt = now
		w.s.products[id] = p
	}
	return nil
}

func (w memoryCatalogWriter) DeactivatePrices(_ context.Context) error {
	now := w.s.now()
	for id, p := range w.s.prices {
		p.Active = false
		p.UpdatedAt = now
		w.s.prices[id] = p
	}
	return nil
}

func (w memoryCatalogWriter) UpsertProduct(_ context.Context, p Product) error {
	now := w.s.now()
	if existing, ok := w.s.products[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Metadata = maps.Clone(p.Metadata)
	w.s.products[p.ID] = p
	return nil
}

func (w memoryCatalogWriter) UpsertPrice(_ context.Context, p Price) error {
	now := w.s.now()
	if existing, ok := w.s.prices[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Metadata = maps.Clone(p.Metadata)
	w.s.prices[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, productID string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	p.Metadata = maps.Clone(p.Metadata)
	return &p, nil
}

// GetPrice returns a price by id regardless of its active flag.
func (s *MemoryStore) GetPrice(_ context.Context, priceID string) (*Price, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[priceID]
	if !ok {
		return nil, false
	}
	p.Metadata = maps.Clone(p.Metadata)
	return &p, true
}

// ListActiveProducts orders products by creation time, then id. Prices are
// ordered by unit amount, then id.
func (s *MemoryStore) ListActiveProducts(_ context.Context) ([]ProductWithPrices, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ProductWithPrices, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		p.Metadata = maps.Clone(p.Metadata)
		item := ProductWithPrices{Product: p, Prices: []Price{}}
		for _, price := range s.prices {
			if price.Active && price.ProductID == p.ID {
				price.Metadata = maps.Clone(price.Metadata)
				item.Prices = append(item.Prices, price)
			}
		}
		slices.SortFunc(item.Prices, func(a, b Price) int {
			if c := cmp.Compare(amountOf(a), amountOf(b)); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		result = append(result, item)
	}

	slices.SortFunc(result, func(a, b ProductWithPrices) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func amountOf(p Price) int64 {
	if p.UnitAmount == nil {
		return 0
	}
	return *p.UnitAmount
}

func (s *MemoryStore) ListActiveSubscriptions(_ context.Context, userID string) ([]Subscription, error) {
	s.mu.RLock()
	subs := make([]Subscription, 0, 1)
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.GrantsAccess() {
			sub.Metadata = maps.Clone(sub.Metadata)
			subs = append(subs, sub)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(subs, func(a, b Subscription) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return subs, nil
}

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if existing, ok := s.subscriptions[sub.ID]; ok {
		sub.CreatedAt = existing.CreatedAt
	} else if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Metadata = maps.Clone(sub.Metadata)
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *MemoryStore) CountActiveSubscriptions(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, sub := range s.subscriptions {
		if sub.GrantsAccess() {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) GetCustomerByUser(_ context.Context, userID string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[userID]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (s *MemoryStore) GetCustomerByProviderID(_ context.Context, providerCustomerID string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.customers {
		if c.ProviderCustomerID == providerCustomerID {
			return &c, nil
		}
	}
	return nil, ErrCustomerNotFound
}

func (s *MemoryStore) CreateCustomer(_ context.Context, c Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, existing := range s.customers {
		if userID != c.UserID && existing.ProviderCustomerID == c.ProviderCustomerID {
			return ErrCustomerConflict
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.customers[c.UserID] = c
	return nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ProviderPaymentID]; ok {
		return nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.payments[p.ProviderPaymentID] = p
	return nil
}

func (s *MemoryStore) TotalRevenue(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, p := range s.payments {
		total += p.Amount
	}
	return total, nil
}
