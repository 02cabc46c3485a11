package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

type WebSocketState int

const (
	WSStateDisconnected WebSocketState = iota
	WSStateConnecting
	WSStateConnected
	WSStateClosed
)

func (s WebSocketState) String() string {
	switch s {
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

type StateCallback func(state WebSocketState)

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// WebSocket is a client transport to an engine server's /ws endpoint.
type WebSocket struct {
	url    string
	logger *zap.Logger

	conn   *websocket.Conn
	state  WebSocketState
	stateM sync.RWMutex

	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	incoming chan reversidto.Reply
	readErr  error

	pingInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type WebSocketOption func(*WebSocket)

func WithPingInterval(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) { ws.pingInterval = d }
}

func WithWebSocketLogger(l *zap.Logger) WebSocketOption {
	return func(ws *WebSocket) {
		if l != nil {
			ws.logger = l
		}
	}
}

func NewWebSocket(url string, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		url:          url,
		logger:       zap.NewNop(),
		state:        WSStateDisconnected,
		incoming:     make(chan reversidto.Reply, 16),
		pingInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// Connect dials the server and starts the read and ping loops.
func (ws *WebSocket) Connect(ctx context.Context) error {
	ws.stateM.Lock()
	if ws.state != WSStateDisconnected {
		st := ws.state
		ws.stateM.Unlock()
		return fmt.Errorf("connect in state %s", st)
	}
	ws.stateM.Unlock()

	ws.rootCtx, ws.rootCancel = context.WithCancel(context.Background())
	ws.setState(WSStateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		ws.setState(WSStateDisconnected)
		ws.rootCancel()
		return fmt.Errorf("dial %s: %w", ws.url, err)
	}
	// evaluations can be large
	conn.SetReadLimit(1 << 20)

	ws.conn = conn
	ws.setState(WSStateConnected)

	ws.wg.Add(2)
	go ws.listen()
	go ws.pingLoop()
	return nil
}

func (ws *WebSocket) listen() {
	defer ws.wg.Done()
	defer close(ws.incoming)
	for {
		var reply reversidto.Reply
		if err := wsjson.Read(ws.rootCtx, ws.conn, &reply); err != nil {
			if !ws.isStopping() {
				ws.logger.Warn("websocket read failed", zap.Error(err))
				ws.readErr = err
				ws.setState(WSStateDisconnected)
			}
			return
		}
		select {
		case ws.incoming <- reply:
		case <-ws.stopCh:
			return
		}
	}
}

func (ws *WebSocket) pingLoop() {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-ws.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := ws.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 && !ws.isStopping() {
				ws.logger.Warn("websocket ping failed twice, closing", zap.Error(err))
				_ = ws.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (ws *WebSocket) Send(ctx context.Context, env reversidto.Envelope) error {
	if ws.State() != WSStateConnected {
		return ErrClosed
	}
	if err := wsjson.Write(ctx, ws.conn, env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func (ws *WebSocket) Receive(ctx context.Context) (reversidto.Reply, error) {
	select {
	case <-ctx.Done():
		return reversidto.Reply{}, ctx.Err()
	case reply, ok := <-ws.incoming:
		if !ok {
			if ws.readErr != nil {
				return reversidto.Reply{}, fmt.Errorf("%w: %w", ErrClosed, ws.readErr)
			}
			return reversidto.Reply{}, ErrClosed
		}
		return reply, nil
	}
}

// OnStateChange registers cb and returns an id for RemoveStateCallback.
func (ws *WebSocket) OnStateChange(cb StateCallback) int {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	ws.nextCbID++
	ws.stateCbs = append(ws.stateCbs, stateCallbackEntry{id: ws.nextCbID, callback: cb})
	return ws.nextCbID
}

func (ws *WebSocket) RemoveStateCallback(id int) {
	ws.cbM.Lock()
	defer ws.cbM.Unlock()
	for i, cb := range ws.stateCbs {
		if cb.id == id {
			ws.stateCbs = append(ws.stateCbs[:i], ws.stateCbs[i+1:]...)
			break
		}
	}
}

func (ws *WebSocket) State() WebSocketState {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.state
}

func (ws *WebSocket) setState(state WebSocketState) {
	ws.stateM.Lock()
	ws.state = state
	ws.stateM.Unlock()

	ws.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(ws.stateCbs))
	copy(callbacks, ws.stateCbs)
	ws.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (ws *WebSocket) Close() error {
	var err error
	ws.stopOnce.Do(func() {
		close(ws.stopCh)
		if ws.conn != nil {
			err = ws.conn.Close(websocket.StatusNormalClosure, "close")
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				err = nil
			}
		}
		if ws.rootCancel != nil {
			ws.rootCancel()
		}
		ws.wg.Wait()
		ws.setState(WSStateClosed)
	})
	return err
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}
