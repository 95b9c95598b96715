package events

import (
	"slices"
	"strings"

	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
)

// Event is any domain event that can be published.
type Event = cbus.Event

// Categories are the first routing-key segment.
const (
	CategoryProduct      = "product"
	CategoryOrder        = "order"
	CategoryUser         = "user"
	CategoryMarketing    = "marketing"
	CategoryNotification = "notification"
)

// Routing keys follow <category>.<action>.
const (
	TopicProductCreated = "product.created"
	TopicProductUpdated = "product.updated"
	TopicProductDeleted = "product.deleted"

	TopicOrderCreated   = "order.created"
	TopicOrderUpdated   = "order.updated"
	TopicOrderCompleted = "order.completed"
	TopicOrderCancelled = "order.cancelled"

	TopicUserCreated = "user.created"
	TopicUserUpdated = "user.updated"
	TopicUserDeleted = "user.deleted"

	TopicCouponUsed     = "marketing.coupon.used"
	TopicPointsEarned   = "marketing.points.earned"
	TopicMemberUpgraded = "marketing.member.upgraded"

	TopicNotification = "notification.general"
)

// Envelope sources.
const (
	SourceAPI      = "graphql-api"
	SourceConsumer = "event-consumer"
)

// Notification types.
const (
	NotifyNewProduct        = "new_product"
	NotifyLowStock          = "low_stock"
	NotifyOrderConfirmation = "order_confirmation"
	NotifyOrderCancelled    = "order_cancelled"
	NotifyWelcome           = "welcome"
	NotifyMemberUpgraded    = "member_upgraded"
)

// AdminRecipient addresses notifications meant for back-office staff.
const AdminRecipient = "admin"

// Topics lists every routing key a variant is published under.
func Topics() []string {
	return slices.Clone(topicOrder)
}

var topicOrder = []string{
	TopicProductCreated, TopicProductUpdated, TopicProductDeleted,
	TopicOrderCreated, TopicOrderUpdated, TopicOrderCompleted, TopicOrderCancelled,
	TopicUserCreated, TopicUserUpdated, TopicUserDeleted,
	TopicCouponUsed, TopicPointsEarned, TopicMemberUpgraded,
	TopicNotification,
}

// Category returns the first segment of topic.
func Category(topic string) string {
	c, _, _ := strings.Cut(topic, ".")
	return c
}
