package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// echoHandler answers each envelope with its operation name.
type echoHandler struct {
	readyErr error
	calls    atomic.Int64
}

func (h *echoHandler) Handle(_ context.Context, env reversidto.Envelope) reversidto.Reply {
	h.calls.Add(1)
	if env.Op == "fail" {
		return reversidto.ErrorReply(env.ID, errors.New("boom"))
	}
	return reversidto.ResultReply(env.ID, env.Op)
}

func (h *echoHandler) Ready() error { return h.readyErr }

func roundTrip(t *testing.T, send func(context.Context, reversidto.Envelope) error, recv func(context.Context) (reversidto.Reply, error), op, id string) reversidto.Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	env, err := reversidto.NewEnvelope(op, id)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := send(ctx, env); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := recv(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return reply
}

func resultString(t *testing.T, r reversidto.Reply) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		t.Fatalf("decode result %q: %v", r.Result, err)
	}
	return s
}

func TestPipe_RoundTrip(t *testing.T) {
	p := NewPipe(&echoHandler{}, 2)
	defer p.Close()

	r := roundTrip(t, p.Send, p.Receive, reversidto.OpIsEnd, "a")
	if r.ID != "a" || resultString(t, r) != reversidto.OpIsEnd {
		t.Fatalf("unexpected reply: %+v", r)
	}
	r = roundTrip(t, p.Send, p.Receive, "fail", "b")
	if r.Error != "boom" {
		t.Fatalf("expected error reply, got %+v", r)
	}
}

func TestPipe_ReceiveAfterClose(t *testing.T) {
	p := NewPipe(&echoHandler{}, 1)
	_ = p.Close()
	if _, err := p.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStream_ServeRoundTrip(t *testing.T) {
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	h := &echoHandler{}
	served := make(chan error, 1)
	go func() {
		err := ServeStream(context.Background(), serverR, serverW, h, nil)
		_ = serverW.Close()
		served <- err
	}()

	s := NewStream(clientR, clientW, nil, clientW.Close)
	r := roundTrip(t, s.Send, s.Receive, reversidto.OpGetRecord, "r1")
	if r.ID != "r1" || resultString(t, r) != reversidto.OpGetRecord {
		t.Fatalf("unexpected reply: %+v", r)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("ServeStream: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("ServeStream did not return after client closed")
	}
}

func TestStream_SkipsNoiseAndEndsOnEOF(t *testing.T) {
	in := strings.NewReader("engine warming up\n{\"id\":\"1\",\"result\":\"ok\"}\n")
	s := NewStream(in, io.Discard, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r, err := s.Receive(ctx)
	if err != nil || r.ID != "1" {
		t.Fatalf("expected reply 1, got %+v err=%v", r, err)
	}
	if _, err := s.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed at EOF, got %v", err)
	}
}

func TestRouter_Ready(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"loaded", nil, http.StatusOK},
		{"load failed", errors.New("evaluator missing"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(NewRouter(&echoHandler{readyErr: tc.err}, nil))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/ready")
			if err != nil {
				t.Fatalf("GET /ready: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&echoHandler{}, nil))
	defer srv.Close()

	states := make(chan WebSocketState, 8)
	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", WithPingInterval(time.Minute))
	ws.OnStateChange(func(s WebSocketState) { states <- s })

	if err := ws.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ws.State() != WSStateConnected {
		t.Fatalf("expected connected, got %s", ws.State())
	}

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("w%d", i)
		r := roundTrip(t, ws.Send, ws.Receive, reversidto.OpIsPass, id)
		if r.ID != id || resultString(t, r) != reversidto.OpIsPass {
			t.Fatalf("unexpected reply: %+v", r)
		}
	}

	_ = ws.Close()
	if ws.State() != WSStateClosed {
		t.Fatalf("expected closed, got %s", ws.State())
	}
	if err := ws.Send(context.Background(), reversidto.Envelope{Op: "x", ID: "y"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if first := <-states; first != WSStateConnecting {
		t.Fatalf("expected connecting first, got %s", first)
	}
}

func TestRedis_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &echoHandler{}
	server := NewRedisServer(rdb, "test", h, nil)
	if err := server.Start(ctx); err != nil {
		t.Fatalf("server start: %v", err)
	}
	defer server.Close()

	client, err := DialRedis(ctx, rdb, "test", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	if !strings.HasPrefix(client.ReplyChannel(), "test:reply:") {
		t.Fatalf("unexpected reply channel %q", client.ReplyChannel())
	}

	r := roundTrip(t, client.Send, client.Receive, reversidto.OpNewGame, "n1")
	if r.ID != "n1" || resultString(t, r) != reversidto.OpNewGame {
		t.Fatalf("unexpected reply: %+v", r)
	}
	r = roundTrip(t, client.Send, client.Receive, "fail", "n2")
	if r.Error != "boom" {
		t.Fatalf("expected error reply, got %+v", r)
	}
}

func TestProbe_WaitReadyRetries(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) < 3 {
			http.Error(w, "loading", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	}))
	defer srv.Close()

	p := NewProbe(srv.URL+"/", WithProbeRetry(5), WithProbeTimeout(time.Second))
	if err := p.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestProbe_NotReady(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&echoHandler{readyErr: errors.New("no weights")}, nil))
	defer srv.Close()

	p := NewProbe(srv.URL, WithProbeRetry(1))
	err := p.WaitReady(context.Background())
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if !strings.Contains(err.Error(), "no weights") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
