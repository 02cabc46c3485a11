package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Session owns the state of one game UI: the busy guard, the render generation and
// the settings. Safe for concurrent use.
type Session struct {
	eng      Engine
	renderer Renderer
	busyObs  BusyObserver
	cfg      Config
	logger   *zap.Logger

	mu   sync.Mutex
	busy bool
	// idle is closed whenever busy is false.
	idle chan struct{}
	gen  uint64
	set  Settings

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(eng Engine, r Renderer, cfg Config) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	s := &Session{
		eng:      eng,
		renderer: r,
		cfg:      cfg,
		logger:   cfg.Logger,
		idle:     idle,
		set:      cfg.Settings,
		ctx:      ctx,
		cancel:   cancel,
	}
	if bo, ok := r.(BusyObserver); ok {
		s.busyObs = bo
	}
	return s
}

// Busy reports whether an action holds the guard.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Generation is the current render generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Settings returns a copy of the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until every background action and refresh has returned.
func (s *Session) Wait() { s.wg.Wait() }

// Close cancels background work and waits for it.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// tryAcquire takes the guard and bumps the generation so in-flight refreshes stop
// painting.
func (s *Session) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	s.idle = make(chan struct{})
	s.gen++
	if s.busyObs != nil {
		s.busyObs.SetBusy(true)
	}
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return
	}
	s.busy = false
	close(s.idle)
	if s.busyObs != nil {
		s.busyObs.SetBusy(false)
	}
}

// acquireWait takes the guard, waiting for the current holder if needed. whileBusy
// runs once per wait.
func (s *Session) acquireWait(ctx context.Context, whileBusy func()) error {
	for {
		if s.tryAcquire() {
			return nil
		}
		if whileBusy != nil {
			whileBusy()
		}
		if err := s.waitIdle(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) waitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) bumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// renderNow fetches a cheap snapshot and paints it unconditionally, invalidating
// any refresh still in flight.
func (s *Session) renderNow(ctx context.Context) (*reversidto.BoardStatus, error) {
	st, err := s.eng.GetState(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.paintLocked(st)
	return st, nil
}

// paintIf paints st only while gen is still current. The check and the paint happen
// under the same lock as every generation bump.
func (s *Session) paintIf(gen uint64, st *reversidto.BoardStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.paintLocked(st)
	return true
}

func (s *Session) paint(st *reversidto.BoardStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paintLocked(st)
}

func (s *Session) paintLocked(st *reversidto.BoardStatus) {
	black, white := s.namesLocked()
	s.renderer.Render(st, black, white)
}

func (s *Session) drawPassMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer.DrawPassMessage()
}

func (s *Session) namesLocked() (black, white string) {
	black, white = DefaultPlayerNames(s.set.AIEnabled, s.set.AISide, s.set.AILevel)
	if s.set.BlackName != "" {
		black = s.set.BlackName
	}
	if s.set.WhiteName != "" {
		white = s.set.WhiteName
	}
	return black, white
}

// Names returns the labels painted for each side.
func (s *Session) Names() (black, white string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

// Blank paints an empty board, as shown before the engine is ready.
func (s *Session) Blank() { s.paint(nil) }

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// spawn runs fn in the background and reports its error.
func (s *Session) spawn(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.report(name, fn(s.ctx))
	}()
}

func (s *Session) report(name string, err error) {
	switch {
	case err == nil, errors.Is(err, ErrBusy):
		return
	case errors.Is(err, context.Canceled) && s.ctx.Err() != nil:
		return
	}
	s.logger.Error("game action failed", zap.String("action", name), zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer.Notify(err)
}
