// Package ingress accepts domain events over HTTP from processes that cannot call the publisher
// directly, such as the GraphQL layer.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
	"github.com/yuanzhaoK/admin-platform-sub004/events"
	"github.com/yuanzhaoK/admin-platform-sub004/publisher"
)

const (
	// CorrelationIDHeader lets a caller pick the correlation id of the event it submits.
	CorrelationIDHeader = "X-Correlation-Id"

	maxBodyBytes = 1 << 20
)

// EventPublisher is the part of publisher.Publisher the handler needs.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event, opts ...publisher.PublishOption) error
}

type publishRequest struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	UserID string          `json:"userId,omitempty"`
}

type publishResponse struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
}

type Handler struct {
	pub    EventPublisher
	logger *slog.Logger
	secret []byte
}

type HandlerOption func(*Handler)

// WithJWTSecret protects the publish endpoint with HS256 bearer tokens. An empty secret leaves it open.
func WithJWTSecret(secret []byte) HandlerOption { return func(h *Handler) { h.secret = secret } }

func NewHandler(pub EventPublisher, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	h := &Handler{pub: pub, logger: logger}
	for _, o := range opts {
		o(h)
	}

	return h
}

// Routes registers POST /v1/events and GET /v1/topics on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	var publish http.Handler = http.HandlerFunc(h.publish)
	if len(h.secret) > 0 {
		publish = RequireBearer(h.secret)(publish)
	}

	mux.Handle("POST /v1/events", publish)
	mux.HandleFunc("GET /v1/topics", h.topics)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req publishRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		http.Error(w, "invalid json", http.StatusBadRequest)

		return
	}

	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		http.Error(w, "missing type", http.StatusBadRequest)
		return
	}

	data, err := withUserID(req.Data, strings.TrimSpace(req.UserID))
	if err != nil {
		http.Error(w, "data must be a json object", http.StatusBadRequest)
		return
	}

	ev, err := events.Decode(events.Envelope{Type: req.Type, Data: data})
	if err != nil {
		if errors.Is(err, berr.ErrUnknownEvent) {
			http.Error(w, "unknown event type "+req.Type, http.StatusUnprocessableEntity)
			return
		}

		http.Error(w, "invalid data for "+req.Type, http.StatusBadRequest)

		return
	}

	correlationID := strings.TrimSpace(r.Header.Get(CorrelationIDHeader))
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	ctx := r.Context()

	opts := []publisher.PublishOption{publisher.WithCorrelationID(correlationID)}
	if id := RequestIDFromContext(ctx); id != "" {
		opts = append(opts, publisher.WithHeader(RequestIDHeader, id))
	}

	if c, ok := ClaimsFromContext(ctx); ok && c.Subject != "" {
		opts = append(opts, publisher.WithHeader(HeaderActor, c.Subject))
	}

	if err := h.pub.Publish(ctx, ev, opts...); err != nil {
		h.logger.ErrorContext(ctx, "ingress publish failed",
			"type", req.Type, "correlation_id", correlationID, "request_id", RequestIDFromContext(ctx), "err", err)

		switch {
		case errors.Is(err, berr.ErrNotConnected), errors.Is(err, berr.ErrClosed):
			http.Error(w, "event bus unavailable", http.StatusServiceUnavailable)
		case errors.Is(err, berr.ErrPublishFailed), errors.Is(err, berr.ErrSerializationFailed):
			http.Error(w, "event rejected", http.StatusBadRequest)
		default:
			http.Error(w, "publish failed", http.StatusInternalServerError)
		}

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(publishResponse{Type: req.Type, CorrelationID: correlationID})
}

func (h *Handler) topics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"topics": events.Topics()})
}

// withUserID sets data.userId when the request names a user and the payload does not.
func withUserID(data json.RawMessage, userID string) (json.RawMessage, error) {
	if userID == "" {
		return data, nil
	}

	fields := map[string]json.RawMessage{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
	}

	if _, ok := fields["userId"]; ok {
		return data, nil
	}

	id, err := json.Marshal(userID)
	if err != nil {
		return nil, err
	}

	fields["userId"] = id

	return json.Marshal(fields)
}
