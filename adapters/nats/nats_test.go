package nats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yuanzhaoK/admin-platform-sub004/adapters/nats"
	cbus "github.com/yuanzhaoK/admin-platform-sub004/contract/bus"
	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

type call struct {
	subject string
	data    []byte
	headers map[string]string
}

type fakeClient struct {
	calls    []call
	err      error
	flushErr error
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	f.calls = append(f.calls, call{subject, data, headers})
	return f.err
}

func (f *fakeClient) Flush(ctx context.Context) error {
	if f.flushErr != nil {
		return f.flushErr
	}

	return ctx.Err()
}

func TestNATS_ForwardUsesPrefixedSubject(t *testing.T) {
	fc := &fakeClient{}
	f := nats.New(fc, "commerce")

	msg := cbus.Message{
		ID:         "m-1",
		RoutingKey: "marketing.points.earned",
		Body:       []byte(`{"userId":"u1"}`),
		Headers:    map[string]string{cbus.HeaderSource: "event-consumer"},
	}
	if err := f.Forward(t.Context(), msg); err != nil {
		t.Fatalf("forward: %v", err)
	}

	if len(fc.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fc.calls))
	}

	c := fc.calls[0]
	if c.subject != "commerce.marketing.points.earned" {
		t.Fatalf("subject mismatch: %s", c.subject)
	}

	if string(c.data) != `{"userId":"u1"}` {
		t.Fatalf("data: %s", c.data)
	}

	if c.headers[cbus.HeaderSource] != "event-consumer" || c.headers[nats.HeaderMsgID] != "m-1" {
		t.Fatalf("headers: %+v", c.headers)
	}

	if len(msg.Headers) != 1 {
		t.Fatalf("forward mutated message headers: %v", msg.Headers)
	}
}

func TestNATS_SubjectWithoutPrefix(t *testing.T) {
	f := nats.New(&fakeClient{}, "")
	if got := f.Subject("order.created"); got != "order.created" {
		t.Fatalf("subject: %s", got)
	}
}

func TestNATS_Errors(t *testing.T) {
	fc := &fakeClient{err: errors.New("slow consumer")}
	f := nats.New(fc, "")

	if err := f.Forward(t.Context(), cbus.Message{RoutingKey: "x"}); !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := f.Forward(ctx, cbus.Message{RoutingKey: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}

	if err := nats.New(nil, "").Forward(t.Context(), cbus.Message{}); !errors.Is(err, berr.ErrNotConnected) {
		t.Fatalf("nil client: %v", err)
	}
}

func TestNATS_ConnectFlushes(t *testing.T) {
	fc := &fakeClient{}
	f := nats.New(fc, "")

	if err := f.Connect(t.Context()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	fc.flushErr = errors.New("no servers")
	if err := f.Connect(t.Context()); !errors.Is(err, berr.ErrNotConnected) {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}
