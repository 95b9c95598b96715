package events

import "context"

// OrderPayload is shared by every order variant.
type OrderPayload struct {
	OrderID   string         `json:"orderId"`
	OrderData map[string]any `json:"orderData,omitempty"`
	UserID    string         `json:"userId,omitempty"`
}

// TotalAmount reports orderData.totalAmount when present and numeric.
func (p OrderPayload) TotalAmount() (float64, bool) {
	return floatField(p.OrderData, "totalAmount")
}

type (
	OrderCreated   struct{ OrderPayload }
	OrderUpdated   struct{ OrderPayload }
	OrderCompleted struct{ OrderPayload }
	OrderCancelled struct{ OrderPayload }
)

// OrderEvent is one of OrderCreated, OrderUpdated, OrderCompleted or OrderCancelled.
type OrderEvent interface {
	Event
	Dispatch(ctx context.Context, h OrderHandler) ([]Event, error)
	order()
}

// OrderHandler handles every order variant.
type OrderHandler interface {
	OnOrderCreated(ctx context.Context, ev OrderCreated) ([]Event, error)
	OnOrderUpdated(ctx context.Context, ev OrderUpdated) ([]Event, error)
	OnOrderCompleted(ctx context.Context, ev OrderCompleted) ([]Event, error)
	OnOrderCancelled(ctx context.Context, ev OrderCancelled) ([]Event, error)
}

func (OrderCreated) Topic() string   { return TopicOrderCreated }
func (OrderUpdated) Topic() string   { return TopicOrderUpdated }
func (OrderCompleted) Topic() string { return TopicOrderCompleted }
func (OrderCancelled) Topic() string { return TopicOrderCancelled }

func (OrderCreated) order()   {}
func (OrderUpdated) order()   {}
func (OrderCompleted) order() {}
func (OrderCancelled) order() {}

func (e OrderCreated) Dispatch(ctx context.Context, h OrderHandler) ([]Event, error) {
	return h.OnOrderCreated(ctx, e)
}

func (e OrderUpdated) Dispatch(ctx context.Context, h OrderHandler) ([]Event, error) {
	return h.OnOrderUpdated(ctx, e)
}

func (e OrderCompleted) Dispatch(ctx context.Context, h OrderHandler) ([]Event, error) {
	return h.OnOrderCompleted(ctx, e)
}

func (e OrderCancelled) Dispatch(ctx context.Context, h OrderHandler) ([]Event, error) {
	return h.OnOrderCancelled(ctx, e)
}
