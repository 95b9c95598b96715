package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/store"
)

const (
	defaultLowStock        = 10
	defaultCouponValidity  = 30 * 24 * time.Hour
	defaultWelcomeDiscount = 10
	pointsPerAmount        = 10
)

// Record fields written by the rules.
const (
	fieldPoints  = "points"
	fieldLevel   = "level"
	fieldUserID  = "userId"
	fieldProduct = "product"
)

// Rules holds the business side effects of every domain event. Each method returns the events to
// publish next; events returned together with an error were produced before the failure.
type Rules struct {
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	members  memberLocks

	lowStock        int
	couponValidity  time.Duration
	welcomeDiscount float64
}

var (
	_ events.ProductHandler      = (*Rules)(nil)
	_ events.OrderHandler        = (*Rules)(nil)
	_ events.UserHandler         = (*Rules)(nil)
	_ events.MarketingHandler    = (*Rules)(nil)
	_ events.NotificationHandler = (*Rules)(nil)
)

// NewRules returns Rules writing to st. A nil notifier logs notifications.
func NewRules(st store.Store, notifier Notifier, logger *slog.Logger) *Rules {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	return &Rules{
		store:           st,
		notifier:        notifier,
		logger:          logger,
		now:             time.Now,
		lowStock:        defaultLowStock,
		couponValidity:  defaultCouponValidity,
		welcomeDiscount: defaultWelcomeDiscount,
	}
}

func notify(typ, userID string, data map[string]any) []events.Event {
	return []events.Event{events.Notification{Type: typ, UserID: userID, Data: data}}
}

// product

func (r *Rules) OnProductCreated(ctx context.Context, ev events.ProductCreated) ([]events.Event, error) {
	r.logger.InfoContext(ctx, "product created", "product_id", ev.ProductID, "user_id", ev.UserID)

	return notify(events.NotifyNewProduct, events.AdminRecipient, map[string]any{
		"productId": ev.ProductID,
		"name":      ev.Name(),
	}), nil
}

func (r *Rules) OnProductUpdated(ctx context.Context, ev events.ProductUpdated) ([]events.Event, error) {
	stock, ok := ev.Stock()
	if !ok || stock >= r.lowStock {
		return nil, nil
	}

	r.logger.WarnContext(ctx, "low stock", "product_id", ev.ProductID, "stock", stock)

	return notify(events.NotifyLowStock, events.AdminRecipient, map[string]any{
		"productId": ev.ProductID,
		"name":      ev.Name(),
		"stock":     stock,
	}), nil
}

// OnProductDeleted drops recommendations of the product. Failures are logged, never returned.
func (r *Rules) OnProductDeleted(ctx context.Context, ev events.ProductDeleted) ([]events.Event, error) {
	n, err := r.store.DeleteBy(ctx, store.Recommendations, fieldProduct, ev.ProductID)
	if err != nil {
		r.logger.WarnContext(ctx, "recommendation cleanup failed", "product_id", ev.ProductID, "err", err)
		return nil, nil
	}

	r.logger.InfoContext(ctx, "product deleted", "product_id", ev.ProductID, "recommendations_removed", n)

	return nil, nil
}

// order

func (r *Rules) OnOrderCreated(ctx context.Context, ev events.OrderCreated) ([]events.Event, error) {
	r.logger.InfoContext(ctx, "order created", "order_id", ev.OrderID, "user_id", ev.UserID)

	data := map[string]any{"orderId": ev.OrderID}
	if total, ok := ev.TotalAmount(); ok {
		data["totalAmount"] = total
	}

	return notify(events.NotifyOrderConfirmation, ev.UserID, data), nil
}

func (r *Rules) OnOrderUpdated(ctx context.Context, ev events.OrderUpdated) ([]events.Event, error) {
	r.logger.InfoContext(ctx, "order updated", "order_id", ev.OrderID)
	return nil, nil
}

// OnOrderCompleted awards one point per ten units of the order total, rounded down.
func (r *Rules) OnOrderCompleted(ctx context.Context, ev events.OrderCompleted) ([]events.Event, error) {
	total, ok := ev.TotalAmount()
	if !ok || ev.UserID == "" {
		r.logger.WarnContext(ctx, "completed order without user or total", "order_id", ev.OrderID)
		return nil, nil
	}

	points := int(math.Floor(total / pointsPerAmount))
	if points <= 0 {
		return nil, nil
	}

	r.logger.InfoContext(ctx, "order completed", "order_id", ev.OrderID, "user_id", ev.UserID, "points", points)

	return []events.Event{events.PointsEarned{
		UserID: ev.UserID,
		MarketingData: events.PointsEarnedData{
			Points:  points,
			OrderID: ev.OrderID,
			Reason:  "order_completed",
		},
	}}, nil
}

func (r *Rules) OnOrderCancelled(ctx context.Context, ev events.OrderCancelled) ([]events.Event, error) {
	r.logger.InfoContext(ctx, "order cancelled", "order_id", ev.OrderID, "user_id", ev.UserID)
	return notify(events.NotifyOrderCancelled, ev.UserID, map[string]any{"orderId": ev.OrderID}), nil
}

// user

// OnUserCreated issues a welcome coupon scoped to the new member.
func (r *Rules) OnUserCreated(ctx context.Context, ev events.UserCreated) ([]events.Event, error) {
	if ev.UserID == "" {
		return nil, fmt.Errorf("user created without id: %w", berr.ErrInvalidEvent)
	}

	now := r.now().UTC()
	code := "WELCOME-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	coupon, err := r.store.Create(ctx, store.Coupons, store.Record{
		"code":          code,
		"name":          "Welcome coupon",
		"type":          "percentage",
		"discountValue": r.welcomeDiscount,
		fieldUserID:     ev.UserID,
		"status":        "active",
		"usageLimit":    1,
		"startsAt":      now.Format(time.RFC3339),
		"expiresAt":     now.Add(r.couponValidity).Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("welcome coupon for %s: %w", ev.UserID, err)
	}

	r.logger.InfoContext(ctx, "welcome coupon issued", "user_id", ev.UserID, "coupon_id", coupon.ID())

	return notify(events.NotifyWelcome, ev.UserID, map[string]any{
		"couponId":   coupon.ID(),
		"couponCode": code,
	}), nil
}

// OnUserUpdated re-derives the member level from stored points when the update touched the level.
func (r *Rules) OnUserUpdated(ctx context.Context, ev events.UserUpdated) ([]events.Event, error) {
	if _, ok := ev.Level(); !ok {
		return nil, nil
	}

	unlock, err := r.members.lock(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := r.store.Get(ctx, store.Users, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("load member %s: %w", ev.UserID, err)
	}

	return r.checkLevel(ctx, ev.UserID, user.String(fieldLevel), user.Int(fieldPoints))
}

func (r *Rules) OnUserDeleted(ctx context.Context, ev events.UserDeleted) ([]events.Event, error) {
	r.logger.InfoContext(ctx, "user deleted", "user_id", ev.UserID)
	return nil, nil
}

// marketing

// OnPointsEarned adds the award to the member balance, writes an audit record and checks the level.
func (r *Rules) OnPointsEarned(ctx context.Context, ev events.PointsEarned) ([]events.Event, error) {
	award := ev.MarketingData.Points
	if award <= 0 || ev.UserID == "" {
		return nil, fmt.Errorf("points award %d for %q: %w", award, ev.UserID, berr.ErrInvalidEvent)
	}

	unlock, err := r.members.lock(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := r.store.Get(ctx, store.Users, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("load member %s: %w", ev.UserID, err)
	}

	balance := user.Int(fieldPoints) + award

	if _, err := r.store.Update(ctx, store.Users, ev.UserID, store.Record{fieldPoints: balance}); err != nil {
		return nil, fmt.Errorf("credit member %s: %w", ev.UserID, err)
	}

	_, err = r.store.Create(ctx, store.PointsRecords, store.Record{
		fieldUserID: ev.UserID,
		"points":    award,
		"balance":   balance,
		"orderId":   ev.MarketingData.OrderID,
		"reason":    ev.MarketingData.Reason,
		"type":      "earned",
		"createdAt": r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("points record for %s: %w", ev.UserID, err)
	}

	r.logger.InfoContext(ctx, "points credited", "user_id", ev.UserID, "points", award, "balance", balance)

	return r.checkLevel(ctx, ev.UserID, user.String(fieldLevel), balance)
}

func (r *Rules) OnMemberUpgraded(ctx context.Context, ev events.MemberUpgraded) ([]events.Event, error) {
	d := ev.MarketingData
	r.logger.InfoContext(ctx, "member upgraded", "user_id", ev.UserID, "from", d.OldLevel, "to", d.NewLevel)

	return notify(events.NotifyMemberUpgraded, ev.UserID, map[string]any{
		"oldLevel": d.OldLevel,
		"newLevel": d.NewLevel,
		"points":   d.Points,
	}), nil
}

func (r *Rules) OnCouponUsed(ctx context.Context, ev events.CouponUsed) ([]events.Event, error) {
	d := ev.MarketingData
	if d.CouponID == "" {
		return nil, fmt.Errorf("coupon use without coupon id: %w", berr.ErrInvalidEvent)
	}

	_, err := r.store.Create(ctx, store.CouponUsage, store.Record{
		"couponId":       d.CouponID,
		fieldUserID:      ev.UserID,
		"orderId":        d.OrderID,
		"discountAmount": d.DiscountAmount,
		"usedAt":         r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("coupon usage %s: %w", d.CouponID, err)
	}

	return nil, nil
}

// notification

func (r *Rules) OnNotification(ctx context.Context, ev events.Notification) ([]events.Event, error) {
	if err := r.notifier.Notify(ctx, ev); err != nil {
		return nil, fmt.Errorf("notify %s: %w", ev.Type, err)
	}

	return nil, nil
}

// checkLevel raises the stored level to the one points earn. Levels never go down.
// A member without a level is recorded as bronze without an upgrade event; a level this
// service does not know is left as it is. Callers hold the member lock.
func (r *Rules) checkLevel(ctx context.Context, userID, current string, points int) ([]events.Event, error) {
	target := LevelFor(points)

	if current == "" {
		current = LevelBronze

		if target == LevelBronze {
			if _, err := r.store.Update(ctx, store.Users, userID, store.Record{fieldLevel: LevelBronze}); err != nil {
				return nil, fmt.Errorf("set level of %s: %w", userID, err)
			}

			return nil, nil
		}
	}

	if Rank(current) < 0 {
		r.logger.WarnContext(ctx, "unknown member level left untouched", "user_id", userID, "level", current, "points", points)
		return nil, nil
	}

	if Rank(target) <= Rank(current) {
		return nil, nil
	}

	if _, err := r.store.Update(ctx, store.Users, userID, store.Record{fieldLevel: target}); err != nil {
		return nil, fmt.Errorf("upgrade %s to %s: %w", userID, target, err)
	}

	r.logger.InfoContext(ctx, "member level raised", "user_id", userID, "from", current, "to", target, "points", points)

	return []events.Event{events.MemberUpgraded{
		UserID: userID,
		MarketingData: events.MemberUpgradedData{
			OldLevel: current,
			NewLevel: target,
			Points:   points,
		},
	}}, nil
}

// isPersistence reports store failures, which abort the rest of an invocation.
func isPersistence(err error) bool {
	return errors.Is(err, berr.ErrPersistence) || errors.Is(err, berr.ErrNotFound)
}
