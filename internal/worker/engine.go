package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderboard/internal/config"
	"github.com/Additional-Code/orderboard/internal/messaging"
)

var (
	engineTracer = otel.Tracer("github.com/Additional-Code/orderboard/worker")
	engineMeter  = otel.Meter("github.com/Additional-Code/orderboard/worker")
)

// Message outcomes recorded on the worker.messages counter.
const (
	OutcomeHandled   = "handled"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
	OutcomeUnrouted  = "unrouted"
)

// ErrDiscard marks a message that can never be handled. The engine
// acknowledges it instead of asking the broker to redeliver.
var ErrDiscard = errors.New("worker: discard message")

// Discard wraps err so the engine acknowledges the message.
func Discard(err error) error {
	if err == nil {
		return ErrDiscard
	}
	return fmt.Errorf("%w: %w", ErrDiscard, err)
}

// HandlerRegistration binds a topic to the handler for its events.
type HandlerRegistration struct {
	Topic   string
	Handler messaging.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Client        messaging.Client
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine consumes order events and dispatches them by topic across a fixed
// number of consumers.
type Engine struct {
	client   messaging.Client
	logger   *zap.Logger
	cfg      config.Config
	handlers map[string]messaging.Handler
	messages metric.Int64Counter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs the worker Engine.
func NewEngine(p Params) *Engine {
	handlers := make(map[string]messaging.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Topic == "" || r.Handler == nil {
			continue
		}
		handlers[r.Topic] = r.Handler
	}

	counter, _ := engineMeter.Int64Counter("worker.messages",
		metric.WithDescription("Consumed messages by topic and outcome"))

	return &Engine{
		client:   p.Client,
		logger:   p.Logger.Named("worker"),
		cfg:      p.Config,
		handlers: handlers,
		messages: counter,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(context.Context) error {
	if !e.cfg.Messaging.Enabled || !e.cfg.Messaging.Workers.Enabled {
		e.logger.Info("worker engine disabled")
		return nil
	}
	if len(e.handlers) == 0 {
		e.logger.Info("worker engine has no handlers; skipping")
		return nil
	}

	consumers := max(e.cfg.Messaging.Workers.Concurrency, 1)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for i := range consumers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeLoop(runCtx, i)
		}()
	}

	e.logger.Info("worker engine started", zap.Int("consumers", consumers), zap.String("topic", e.client.Topic()))
	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("worker engine stopped")
		return nil
	}
}

func (e *Engine) consumeLoop(ctx context.Context, consumer int) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := e.client.Consume(ctx, func(msgCtx context.Context, msg messaging.Message) error {
			return e.dispatch(msgCtx, consumer, msg)
		})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Int("consumer", consumer), zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// dispatch runs the handler for msg. A nil return acknowledges the message;
// an error leaves it to the broker for redelivery.
func (e *Engine) dispatch(ctx context.Context, consumer int, msg messaging.Message) (err error) {
	ctx, span := engineTracer.Start(ctx, "worker.dispatch", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("worker.consumer", consumer),
		))
	defer span.End()

	outcome := OutcomeHandled
	defer func() {
		e.messages.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", msg.Topic),
			attribute.String("outcome", outcome),
		))
	}()

	handler, ok := e.handlers[msg.Topic]
	if !ok {
		outcome = OutcomeUnrouted
		e.logger.Warn("no handler for topic", zap.String("topic", msg.Topic))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("handler panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			e.logger.Error("message handler panicked", zap.String("topic", msg.Topic), zap.Any("panic", r))
		}
	}()

	err = handler(ctx, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDiscard):
		outcome = OutcomeDiscarded
		span.RecordError(err)
		e.logger.Warn("discarding message", zap.String("topic", msg.Topic), zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	default:
		outcome = OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
}
