package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

func requestChannel(prefix string) string { return strings.TrimSpace(prefix) + ":req" }
func replyChannel(prefix, id string) string {
	return strings.TrimSpace(prefix) + ":reply:" + id
}

// Redis is a client transport over Redis pub/sub. Requests go to
// "<prefix>:req"; replies come back on a per-client channel named in
// each envelope's ReplyTo.
type Redis struct {
	rdb     *redis.Client
	prefix  string
	replyTo string
	logger  *zap.Logger

	ps     *redis.PubSub
	msgs   <-chan *redis.Message
	closed chan struct{}
	once   sync.Once
}

// DialRedis subscribes to a fresh reply channel and waits for the
// subscription to be confirmed before returning.
func DialRedis(ctx context.Context, rdb *redis.Client, prefix string, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Redis{
		rdb:     rdb,
		prefix:  prefix,
		replyTo: replyChannel(prefix, uuid.NewString()),
		logger:  logger,
		closed:  make(chan struct{}),
	}
	r.ps = rdb.Subscribe(ctx, r.replyTo)
	if _, err := r.ps.Receive(ctx); err != nil {
		_ = r.ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.replyTo, err)
	}
	r.msgs = r.ps.Channel()
	return r, nil
}

func (r *Redis) ReplyChannel() string { return r.replyTo }

func (r *Redis) Send(ctx context.Context, env reversidto.Envelope) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}
	env.ReplyTo = r.replyTo
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, requestChannel(r.prefix), raw).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (r *Redis) Receive(ctx context.Context) (reversidto.Reply, error) {
	for {
		select {
		case <-ctx.Done():
			return reversidto.Reply{}, ctx.Err()
		case <-r.closed:
			return reversidto.Reply{}, ErrClosed
		case msg, ok := <-r.msgs:
			if !ok {
				return reversidto.Reply{}, ErrClosed
			}
			var reply reversidto.Reply
			if err := json.Unmarshal([]byte(msg.Payload), &reply); err != nil {
				r.logger.Warn("invalid reply payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			return reply, nil
		}
	}
}

func (r *Redis) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		err = r.ps.Close()
	})
	return err
}

// RedisServer consumes "<prefix>:req" and publishes each reply to the
// envelope's ReplyTo channel.
type RedisServer struct {
	rdb    *redis.Client
	prefix string
	h      Handler
	logger *zap.Logger

	ps *redis.PubSub
	wg sync.WaitGroup
}

func NewRedisServer(rdb *redis.Client, prefix string, h Handler, logger *zap.Logger) *RedisServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisServer{rdb: rdb, prefix: prefix, h: h, logger: logger}
}

// Start subscribes synchronously, so requests published after it returns
// are not lost, and serves in the background until ctx is done or Close.
func (s *RedisServer) Start(ctx context.Context) error {
	s.ps = s.rdb.Subscribe(ctx, requestChannel(s.prefix))
	if _, err := s.ps.Receive(ctx); err != nil {
		_ = s.ps.Close()
		return fmt.Errorf("subscribe %s: %w", requestChannel(s.prefix), err)
	}
	msgs := s.ps.Channel()
	s.logger.Info("engine redis server subscribed", zap.String("channel", requestChannel(s.prefix)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s.wg.Add(1)
				go func(payload string) {
					defer s.wg.Done()
					s.serve(ctx, payload)
				}(msg.Payload)
			}
		}
	}()
	return nil
}

func (s *RedisServer) serve(ctx context.Context, payload string) {
	var env reversidto.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Warn("invalid envelope payload", zap.Error(err))
		return
	}
	if env.ReplyTo == "" {
		s.logger.Warn("envelope without reply channel", zap.String("op", env.Op), zap.String("id", env.ID))
		return
	}
	reply := s.h.Handle(ctx, env)
	raw, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("marshal reply", zap.String("id", env.ID), zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, env.ReplyTo, raw).Err(); err != nil {
		s.logger.Warn("publish reply", zap.String("channel", env.ReplyTo), zap.Error(err))
	}
}

// Run is Start followed by blocking until ctx is done.
func (s *RedisServer) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

func (s *RedisServer) Close() error {
	if s.ps == nil {
		return nil
	}
	err := s.ps.Close()
	s.wg.Wait()
	return err
}
