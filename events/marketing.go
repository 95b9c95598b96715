package events

import "context"

type PointsEarnedData struct {
	Points  int    `json:"points"`
	OrderID string `json:"orderId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type MemberUpgradedData struct {
	OldLevel string `json:"oldLevel"`
	NewLevel string `json:"newLevel"`
	Points   int    `json:"points"`
}

type CouponUsedData struct {
	CouponID       string  `json:"couponId"`
	OrderID        string  `json:"orderId,omitempty"`
	DiscountAmount float64 `json:"discountAmount,omitempty"`
}

// PointsEarned awards points to a member.
type PointsEarned struct {
	UserID        string           `json:"userId"`
	MarketingData PointsEarnedData `json:"marketingData"`
}

// MemberUpgraded announces a level raise.
type MemberUpgraded struct {
	UserID        string             `json:"userId"`
	MarketingData MemberUpgradedData `json:"marketingData"`
}

// CouponUsed records a coupon redemption.
type CouponUsed struct {
	UserID        string         `json:"userId"`
	MarketingData CouponUsedData `json:"marketingData"`
}

// MarketingEvent is one of CouponUsed, PointsEarned or MemberUpgraded.
type MarketingEvent interface {
	Event
	Dispatch(ctx context.Context, h MarketingHandler) ([]Event, error)
	marketing()
}

// MarketingHandler handles every marketing variant.
type MarketingHandler interface {
	OnCouponUsed(ctx context.Context, ev CouponUsed) ([]Event, error)
	OnPointsEarned(ctx context.Context, ev PointsEarned) ([]Event, error)
	OnMemberUpgraded(ctx context.Context, ev MemberUpgraded) ([]Event, error)
}

func (CouponUsed) Topic() string     { return TopicCouponUsed }
func (PointsEarned) Topic() string   { return TopicPointsEarned }
func (MemberUpgraded) Topic() string { return TopicMemberUpgraded }

func (CouponUsed) marketing()     {}
func (PointsEarned) marketing()   {}
func (MemberUpgraded) marketing() {}

func (e CouponUsed) Dispatch(ctx context.Context, h MarketingHandler) ([]Event, error) {
	return h.OnCouponUsed(ctx, e)
}

func (e PointsEarned) Dispatch(ctx context.Context, h MarketingHandler) ([]Event, error) {
	return h.OnPointsEarned(ctx, e)
}

func (e MemberUpgraded) Dispatch(ctx context.Context, h MarketingHandler) ([]Event, error) {
	return h.OnMemberUpgraded(ctx, e)
}
