// Package bridge turns a fire-and-forget message transport into awaitable calls by
// tagging every request with a unique id and resolving the matching pending call when
// its reply arrives. Replies may arrive in any order.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

var (
	ErrClosed           = errors.New("bridge closed")
	ErrDuplicateID      = errors.New("duplicate request id")
	ErrUnknownOperation = errors.New("unknown operation")
)

// Transport carries envelopes to the engine and replies back. Receive blocks until a
// reply is available, the transport fails, or ctx is done.
type Transport interface {
	Send(ctx context.Context, env reversidto.Envelope) error
	Receive(ctx context.Context) (reversidto.Reply, error)
	Close() error
}

type Option func(*Bridge)

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCallTimeout bounds every call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// WithIDGenerator replaces the request id source.
func WithIDGenerator(fn func() string) Option {
	return func(b *Bridge) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// WithTracer replaces the tracer used for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) {
		if t != nil {
			b.tracer = t
		}
	}
}

type Bridge struct {
	transport Transport
	logger    *zap.Logger
	tracer    trace.Tracer
	timeout   time.Duration
	newID     func() string

	mu      sync.Mutex
	pending map[string]chan reversidto.Reply
	err     error

	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New starts the receive loop over t.
func New(t Transport, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		transport: t,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/park285/deft-reversi-go/internal/bridge"),
		newID:     newRequestID,
		pending:   make(map[string]chan reversidto.Reply),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Add(1)
	go b.receiveLoop(ctx)
	return b
}

// newRequestID composes a timestamp with random bits.
func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Call sends op with args and waits for the matching reply. The raw result is returned;
// engine-side failures come back as *reversidto.RemoteError.
func (b *Bridge) Call(ctx context.Context, op string, args ...any) (json.RawMessage, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	id := b.newID()
	ctx, span := b.tracer.Start(ctx, "engine."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.id", id), attribute.String("rpc.method", op)),
	)
	defer span.End()

	result, err := b.call(ctx, id, op, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (b *Bridge) call(ctx context.Context, id, op string, args []any) (json.RawMessage, error) {
	env, err := reversidto.NewEnvelope(op, id, args...)
	if err != nil {
		return nil, err
	}

	ch, err := b.register(id)
	if err != nil {
		return nil, err
	}

	if err := b.transport.Send(ctx, env); err != nil {
		b.unregister(id)
		return nil, fmt.Errorf("send %s: %w", op, err)
	}

	select {
	case reply := <-ch:
		return replyResult(op, reply)
	case <-ctx.Done():
		b.unregister(id)
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-b.done:
		// the reply may have been delivered just before shutdown
		select {
		case reply := <-ch:
			return replyResult(op, reply)
		default:
		}
		return nil, fmt.Errorf("%s: %w", op, b.closedErr())
	}
}

// replyResult maps a reply of op to its result or to a *RemoteError, wrapped in
// ErrUnknownOperation when the engine does not know op.
func replyResult(op string, reply reversidto.Reply) (json.RawMessage, error) {
	if reply.Error == "" {
		return reply.Result, nil
	}
	rerr := &reversidto.RemoteError{Op: op, Message: reply.Error}
	if strings.HasPrefix(reply.Error, ErrUnknownOperation.Error()) {
		return nil, fmt.Errorf("%w: %w", ErrUnknownOperation, rerr)
	}
	return nil, rerr
}

// CallInto is Call followed by decoding the result into out.
func (b *Bridge) CallInto(ctx context.Context, out any, op string, args ...any) error {
	raw, err := b.Call(ctx, op, args...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s: empty result", op)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", op, err)
	}
	return nil
}

func (b *Bridge) register(id string) (chan reversidto.Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if _, exists := b.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ch := make(chan reversidto.Reply, 1)
	b.pending[id] = ch
	return ch, nil
}

func (b *Bridge) unregister(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// resolve hands the reply to its pending call exactly once.
func (b *Bridge) resolve(reply reversidto.Reply) bool {
	b.mu.Lock()
	ch, ok := b.pending[reply.ID]
	if ok {
		delete(b.pending, reply.ID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- reply
	return true
}

func (b *Bridge) receiveLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		reply, err := b.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Warn("bridge receive failed", zap.Error(err))
			}
			b.shutdown(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}
		if !b.resolve(reply) {
			b.logger.Debug("reply without pending call dropped", zap.String("id", reply.ID))
		}
	}
}

func (b *Bridge) shutdown(cause error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = cause
	}
	b.mu.Unlock()
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Bridge) closedErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	return ErrClosed
}

// Pending reports the number of calls still waiting for a reply.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Done is closed once the bridge stops receiving.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Close stops the receive loop, fails outstanding calls and closes the transport.
func (b *Bridge) Close() error {
	b.shutdown(ErrClosed)
	b.cancel()
	err := b.transport.Close()
	b.wg.Wait()
	return err
}
