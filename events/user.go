package events

import "context"

// UserPayload is shared by every user variant.
type UserPayload struct {
	UserID   string         `json:"userId"`
	UserData map[string]any `json:"userData,omitempty"`
}

// Level reports userData.level when present.
func (p UserPayload) Level() (string, bool) {
	s, ok := p.UserData["level"].(string)
	return s, ok
}

type (
	UserCreated struct{ UserPayload }
	UserUpdated struct{ UserPayload }
	UserDeleted struct{ UserPayload }
)

// UserEvent is one of UserCreated, UserUpdated or UserDeleted.
type UserEvent interface {
	Event
	Dispatch(ctx context.Context, h UserHandler) ([]Event, error)
	user()
}

// UserHandler handles every user variant.
type UserHandler interface {
	OnUserCreated(ctx context.Context, ev UserCreated) ([]Event, error)
	OnUserUpdated(ctx context.Context, ev UserUpdated) ([]Event, error)
	OnUserDeleted(ctx context.Context, ev UserDeleted) ([]Event, error)
}

func (UserCreated) Topic() string { return TopicUserCreated }
func (UserUpdated) Topic() string { return TopicUserUpdated }
func (UserDeleted) Topic() string { return TopicUserDeleted }

func (UserCreated) user() {}
func (UserUpdated) user() {}
func (UserDeleted) user() {}

func (e UserCreated) Dispatch(ctx context.Context, h UserHandler) ([]Event, error) {
	return h.OnUserCreated(ctx, e)
}

func (e UserUpdated) Dispatch(ctx context.Context, h UserHandler) ([]Event, error) {
	return h.OnUserUpdated(ctx, e)
}

func (e UserDeleted) Dispatch(ctx context.Context, h UserHandler) ([]Event, error) {
	return h.OnUserDeleted(ctx, e)
}
