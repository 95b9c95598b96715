package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

type decoder func(json.RawMessage) (Event, error)

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	return v, nil
}

var decoders = map[string]decoder{
	TopicProductCreated: decodeAs[ProductCreated],
	TopicProductUpdated: decodeAs[ProductUpdated],
	TopicProductDeleted: decodeAs[ProductDeleted],

	TopicOrderCreated:   decodeAs[OrderCreated],
	TopicOrderUpdated:   decodeAs[OrderUpdated],
	TopicOrderCompleted: decodeAs[OrderCompleted],
	TopicOrderCancelled: decodeAs[OrderCancelled],

	TopicUserCreated: decodeAs[UserCreated],
	TopicUserUpdated: decodeAs[UserUpdated],
	TopicUserDeleted: decodeAs[UserDeleted],

	TopicCouponUsed:     decodeAs[CouponUsed],
	TopicPointsEarned:   decodeAs[PointsEarned],
	TopicMemberUpgraded: decodeAs[MemberUpgraded],

	TopicNotification: decodeAs[Notification],
}

// Decode returns the variant named by env.Type.
func Decode(env Envelope) (Event, error) {
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("decode %q: %w", env.Type, berr.ErrUnknownEvent)
	}

	ev, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, errors.Join(berr.ErrSerializationFailed, err))
	}

	return ev, nil
}

func decodeFamily[F Event](env Envelope, family string) (F, error) {
	var zero F

	ev, err := Decode(env)
	if err != nil {
		return zero, err
	}

	f, ok := ev.(F)
	if !ok {
		return zero, fmt.Errorf("decode %s as %s event: %w", env.Type, family, berr.ErrUnknownEvent)
	}

	return f, nil
}

// DecodeProduct decodes a product variant.
func DecodeProduct(env Envelope) (ProductEvent, error) {
	return decodeFamily[ProductEvent](env, CategoryProduct)
}

// DecodeOrder decodes an order variant.
func DecodeOrder(env Envelope) (OrderEvent, error) {
	return decodeFamily[OrderEvent](env, CategoryOrder)
}

// DecodeUser decodes a user variant.
func DecodeUser(env Envelope) (UserEvent, error) {
	return decodeFamily[UserEvent](env, CategoryUser)
}

// DecodeMarketing decodes a marketing variant.
func DecodeMarketing(env Envelope) (MarketingEvent, error) {
	return decodeFamily[MarketingEvent](env, CategoryMarketing)
}

// DecodeNotification decodes a notification.
func DecodeNotification(env Envelope) (NotificationEvent, error) {
	return decodeFamily[NotificationEvent](env, CategoryNotification)
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intField(m map[string]any, key string) (int, bool) {
	f, ok := floatField(m, key)
	if !ok {
		return 0, false
	}

	return int(f), true
}
