package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/messaging"
)

type scriptedClient struct {
	messages []messaging.Message
}

func (s *scriptedClient) Publish(context.Context, []byte, []byte) error { return nil }
func (s *scriptedClient) Topic() string                                 { return "orders.events" }

func (s *scriptedClient) Consume(ctx context.Context, handler messaging.Handler) error {
	for _, m := range s.messages {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func engineConfig(enabled bool) config.Config {
	cfg := config.Config{}
	cfg.Messaging.Enabled = enabled
	cfg.Messaging.Workers.Enabled = enabled
	cfg.Messaging.Workers.Concurrency = 1
	return cfg
}

func TestEngineDispatchesByTopic(t *testing.T) {
	got := make(chan string, 2)
	client := &scriptedClient{messages: []messaging.Message{
		{Topic: "orders.events", Value: []byte("a")},
		{Topic: "other", Value: []byte("b")},
	}}
	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: engineConfig(true),
		Registrations: []HandlerRegistration{{
			Topic: "orders.events",
			Handler: func(_ context.Context, m messaging.Message) error {
				got <- string(m.Value)
				return nil
			},
		}},
	})

	require.NoError(t, engine.start(context.Background()))
	select {
	case v := <-got:
		assert.Equal(t, "a", v)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, engine.stop(ctx))
	assert.Empty(t, got)
}

func TestEngineDisabled(t *testing.T) {
	engine := NewEngine(Params{Client: &scriptedClient{}, Logger: zap.NewNop(), Config: engineConfig(false)})
	require.NoError(t, engine.start(context.Background()))
	require.NoError(t, engine.stop(context.Background()))
}

func TestDispatchOutcomes(t *testing.T) {
	boom := errors.New("feed unavailable")
	engine := NewEngine(Params{
		Client: &scriptedClient{},
		Logger: zap.NewNop(),
		Config: engineConfig(true),
		Registrations: []HandlerRegistration{{
			Topic: "orders.events",
			Handler: func(_ context.Context, m messaging.Message) error {
				switch string(m.Value) {
				case "malformed":
					return Discard(errors.New("bad json"))
				case "retry":
					return boom
				case "panic":
					panic("nil snapshot")
				}
				return nil
			},
		}},
	})
	ctx := context.Background()

	assert.NoError(t, engine.dispatch(ctx, 0, messaging.Message{Topic: "orders.events", Value: []byte("ok")}))
	assert.NoError(t, engine.dispatch(ctx, 0, messaging.Message{Topic: "orders.events", Value: []byte("malformed")}))
	assert.NoError(t, engine.dispatch(ctx, 0, messaging.Message{Topic: "menu.events"}))
	assert.ErrorIs(t, engine.dispatch(ctx, 0, messaging.Message{Topic: "orders.events", Value: []byte("retry")}), boom)
	assert.ErrorContains(t, engine.dispatch(ctx, 0, messaging.Message{Topic: "orders.events", Value: []byte("panic")}), "handler panic")
}

func TestDiscardWrapsCause(t *testing.T) {
	cause := errors.New("bad json")
	err := Discard(cause)
	assert.ErrorIs(t, err, ErrDiscard)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, Discard(nil), ErrDiscard)
}
