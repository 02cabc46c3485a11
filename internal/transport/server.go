package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// NewRouter exposes h over HTTP: GET /ready reports engine readiness and
// GET /ws carries envelopes as websocket JSON messages.
func NewRouter(h Handler, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := h.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(reversidto.ReadyResult))
	})
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		serveWS(w, req, h, logger)
	})
	return r
}

func serveWS(w http.ResponseWriter, req *http.Request, h Handler, logger *zap.Logger) {
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(1 << 20)
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	for {
		var env reversidto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.Debug("websocket read ended", zap.Error(err))
			}
			cancel()
			return
		}
		wg.Add(1)
		go func(env reversidto.Envelope) {
			defer wg.Done()
			reply := h.Handle(ctx, env)
			writeMu.Lock()
			defer writeMu.Unlock()
			wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
			defer wcancel()
			if err := wsjson.Write(wctx, conn, reply); err != nil {
				logger.Debug("websocket write failed", zap.String("id", env.ID), zap.Error(err))
			}
		}(env)
	}
}

// Server wraps an http.Server around NewRouter.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, h Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("engine http server listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
