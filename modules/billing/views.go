package billing

import (
	"time"

	core "github.com/dmitrymomot/launchpad/pkg/billing"
)

type userView struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name,omitempty"`
	Role             string     `json:"role"`
	MembershipStatus string     `json:"membership_status"`
	ProductID        *string    `json:"product_id,omitempty"`
	Tokens           int64      `json:"tokens"`
	TokensExpiresAt  *time.Time `json:"tokens_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newUserView(u *core.User) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             string(u.Role),
		MembershipStatus: string(u.MembershipStatus),
		ProductID:        u.ProductID,
		Tokens:           u.Tokens,
		TokensExpiresAt:  u.TokensExpiresAt,
		CreatedAt:        u.CreatedAt,
	}
}

type subscriptionView struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	PriceID            string     `json:"price_id"`
	ProductID          string     `json:"product_id"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func newSubscriptionView(s *core.Subscription) *subscriptionView {
	if s == nil {
		return nil
	}
	return &subscriptionView{
		ID:                 s.ID,
		Status:             s.Status,
		PriceID:            s.PriceID,
		ProductID:          s.ProductID,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         s.CanceledAt,
		TrialEnd:           s.TrialEnd,
		CreatedAt:          s.CreatedAt,
	}
}

type priceView struct {
	ID              string `json:"id"`
	Currency        string `json:"currency"`
	Type            string `json:"type"`
	UnitAmount      *int64 `json:"unit_amount"`
	Interval        string `json:"interval,omitempty"`
	IntervalCount   *int64 `json:"interval_count,omitempty"`
	TrialPeriodDays *int64 `json:"trial_period_days,omitempty"`
}

type productView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	Features    []string          `json:"features"`
	Tokens      int64             `json:"tokens"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Prices      []priceView       `json:"prices"`
}

func newProductViews(products []core.ProductWithPrices) []productView {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		v := productView{
			ID:          p.ID,
			Name:        p.Name,
			DisplayName: p.DisplayName(),
			Description: p.Description,
			Features:    p.Features(),
			Tokens:      p.TokenGrant(),
			Metadata:    p.Metadata,
			Prices:      make([]priceView, 0, len(p.Prices)),
		}
		for _, price := range p.Prices {
			v.Prices = append(v.Prices, priceView{
				ID:              price.ID,
				Currency:        price.Currency,
				Type:            price.Type,
				UnitAmount:      price.UnitAmount,
				Interval:        price.Interval,
				IntervalCount:   price.IntervalCount,
				TrialPeriodDays: price.TrialPeriodDays,
			})
		}
		views = append(views, v)
	}
	return views
}

type accessView struct {
	HasAccess    bool              `json:"has_access"`
	IsAdmin      bool              `json:"is_admin"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
	User         *userView         `json:"user,omitempty"`
}

type userOverviewView struct {
	User         *userView         `json:"user"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
}
