package billing

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Role is a user's access role.
type Role string

const (
	RoleUser    Role = "USER"
	RolePremium Role = "PREMIUM"
	RoleAdmin   Role = "ADMIN"
	RoleBanned  Role = "BANNED"
)

// Roles lists every valid role in declaration order.
var Roles = []Role{RoleUser, RolePremium, RoleAdmin, RoleBanned}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// MembershipStatus mirrors the billing state of a user's membership.
type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "ACTIVE"
	MembershipInactive MembershipStatus = "INACTIVE"
	MembershipCanceled MembershipStatus = "CANCELED"
	MembershipPastDue  MembershipStatus = "PAST_DUE"
)

// Provider subscription statuses. Status is free text from the provider,
// these are the values the entitlement logic cares about.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusCanceled          = "canceled"
	StatusPastDue           = "past_due"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
	StatusPaused            = "paused"
)

// Product metadata keys.
const (
	MetadataTokens      = "tokens"
	MetadataFeatures    = "features"
	MetadataDisplayName = "displayName"
)

// User is the local user record the entitlement logic mutates.
type User struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	MembershipStatus MembershipStatus
	Tokens           int64
	TokensExpiresAt  *time.Time
	ProductID        *string // assigned catalog product, nil for free users
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the user holds the ADMIN role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Product is a local mirror of a provider catalog item.
type Product struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TokenGrant returns the number of tokens the product grants per grant period.
// Missing, non-numeric or negative values yield 0.
func (p *Product) TokenGrant() int64 {
	if p == nil || p.Metadata == nil {
		return 0
	}
	raw := strings.TrimSpace(p.Metadata[MetadataTokens])
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Features decodes the JSON array stored under the "features" metadata key.
func (p *Product) Features() []string {
	if p == nil || p.Metadata == nil {
		return []string{}
	}
	raw := p.Metadata[MetadataFeatures]
	if raw == "" {
		return []string{}
	}
	var features []string
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		return []string{}
	}
	return features
}

// DisplayName prefers the "displayName" metadata value over the product name.
func (p *Product) DisplayName() string {
	if p == nil {
		return "Unknown"
	}
	if v := strings.TrimSpace(p.Metadata[MetadataDisplayName]); v != "" {
		return v
	}
	if p.Name != "" {
		return p.Name
	}
	return "Unknown"
}

// Price belongs to exactly one Product.
type Price struct {
	ID              string
	ProductID       string
	Active          bool
	Currency        string
	Type            string // one_time or recurring
	UnitAmount      *int64 // smallest currency unit
	Interval        string // month, year, empty for one-time prices
	IntervalCount   *int64
	TrialPeriodDays *int64
	Metadata        map[string]string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductWithPrices is an active product together with its active prices.
type ProductWithPrices struct {
	Product
	Prices []Price
}

// Subscription is a local mirror of a provider subscription.
// ID is the provider's subscription id.
type Subscription struct {
	ID                 string
	UserID             string
	CustomerID         string // provider customer id
	PriceID            string
	ProductID          string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	Metadata           map[string]string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == StatusActive
}

func (s *Subscription) IsTrialing() bool {
	return s != nil && s.Status == StatusTrialing
}

// GrantsAccess reports whether the subscription counts for entitlement purposes.
func (s *Subscription) GrantsAccess() bool {
	return s.IsActive() || s.IsTrialing()
}

// MembershipStatusFor maps a provider subscription status onto a membership status.
// Unknown statuses fail closed.
func MembershipStatusFor(status string) MembershipStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case StatusActive, StatusTrialing:
		return MembershipActive
	case StatusPastDue, StatusUnpaid:
		return MembershipPastDue
	case StatusIncomplete, StatusPaused:
		return MembershipInactive
	default:
		return MembershipCanceled
	}
}

// Customer maps a user to the provider's customer id.
type Customer struct {
	ID                 string
	UserID             string
	ProviderCustomerID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Payment is an append-only record of a payment outcome.
type Payment struct {
	ID                string
	UserID            string
	ProviderPaymentID string
	Amount            int64
	Currency          string
	Status            string
	ProductID         *string
	Description       string
	CreatedAt         time.Time
}

// TokenBalance is the effective token balance of a user.
type TokenBalance struct {
	Tokens    int64      `json:"tokens"`
	Expired   bool       `json:"expired"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Access is the result of an access check.
// Zero value means no access and no user.
type Access struct {
	HasAccess    bool
	Subscription *Subscription
	User         *User
}

// Tier is a presentation view of an active product.
type Tier struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval,omitempty"`
	Features    []string `json:"features"`
	Active      bool     `json:"active"`
	SortOrder   int      `json:"sort_order"`
}

// HasProductAccess reports whether a user assigned to userProductID may access
// content gated by requiredProductID. Empty requirement means public content.
func HasProductAccess(userProductID, requiredProductID *string) bool {
	if requiredProductID == nil || *requiredProductID == "" {
		return true
	}
	if userProductID == nil {
		return false
	}
	return *userProductID == *requiredProductID
}

// HasPremiumAccess reports whether any product is assigned.
func HasPremiumAccess(userProductID *string) bool {
	return userProductID != nil && *userProductID != ""
}
