package events

import "context"

// ProductPayload is shared by every product variant.
type ProductPayload struct {
	ProductID   string         `json:"productId"`
	ProductData map[string]any `json:"productData,omitempty"`
	UserID      string         `json:"userId,omitempty"`
}

// Stock reports productData.stock when present and numeric.
func (p ProductPayload) Stock() (int, bool) {
	return intField(p.ProductData, "stock")
}

// Name reports productData.name.
func (p ProductPayload) Name() string {
	s, _ := p.ProductData["name"].(string)
	return s
}

type (
	ProductCreated struct{ ProductPayload }
	ProductUpdated struct{ ProductPayload }
	ProductDeleted struct{ ProductPayload }
)

// ProductEvent is one of ProductCreated, ProductUpdated or ProductDeleted.
type ProductEvent interface {
	Event
	Dispatch(ctx context.Context, h ProductHandler) ([]Event, error)
	product()
}

// ProductHandler handles every product variant and returns the events to publish next.
type ProductHandler interface {
	OnProductCreated(ctx context.Context, ev ProductCreated) ([]Event, error)
	OnProductUpdated(ctx context.Context, ev ProductUpdated) ([]Event, error)
	OnProductDeleted(ctx context.Context, ev ProductDeleted) ([]Event, error)
}

func (ProductCreated) Topic() string { return TopicProductCreated }
func (ProductUpdated) Topic() string { return TopicProductUpdated }
func (ProductDeleted) Topic() string { return TopicProductDeleted }

func (ProductCreated) product() {}
func (ProductUpdated) product() {}
func (ProductDeleted) product() {}

func (e ProductCreated) Dispatch(ctx context.Context, h ProductHandler) ([]Event, error) {
	return h.OnProductCreated(ctx, e)
}

func (e ProductUpdated) Dispatch(ctx context.Context, h ProductHandler) ([]Event, error) {
	return h.OnProductUpdated(ctx, e)
}

func (e ProductDeleted) Dispatch(ctx context.Context, h ProductHandler) ([]Event, error) {
	return h.OnProductDeleted(ctx, e)
}
