package game

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/internal/events"
)

// Attach subscribes the session to bus and returns the unsubscribe func.
func (s *Session) Attach(bus *events.Bus) func() {
	id := bus.Subscribe(s.Handle)
	return func() { bus.Unsubscribe(id) }
}

// Handle reacts to one UI event without blocking. Guarded actions are accepted or
// dropped right here, so the order of clicks decides which one wins.
func (s *Session) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.BoardClick:
		s.guarded(ev.Name(), func(ctx context.Context) error { return s.boardClick(ctx, e.Cell) })
	case events.DoOverClick:
		s.guarded(ev.Name(), s.undo)
	case events.RedoClick:
		s.guarded(ev.Name(), s.redo)
	case events.NewGameClick:
		s.spawn(ev.Name(), s.NewGame)
	case events.DeepHintClick:
		s.spawn(ev.Name(), func(ctx context.Context) error { return s.DeepHint(ctx, e.Depth) })
	case events.SwitchShowEvalClick:
		s.SwitchShowEval()
	case events.SetEnableAI:
		s.SetEnableAI(e.Enabled)
	case events.SetAILevel:
		s.SetAILevel(e.Level)
	case events.SetAITurn:
		s.SetAITurn(e.Side)
	case events.SetPlayerName:
		s.SetPlayerName(e.Black, e.White)
	case events.SetHumanOpening:
		s.spawn(ev.Name(), func(ctx context.Context) error { return s.SetHumanOpening(ctx, e.Value) })
	default:
		s.logger.Warn("unhandled event", zap.String("event", ev.Name()))
	}
}

// guarded takes the guard on the caller's goroutine and runs body in the background.
func (s *Session) guarded(name string, body func(ctx context.Context) error) {
	if err := s.begin(name); err != nil {
		return
	}
	s.spawn(name, func(ctx context.Context) error {
		defer s.finish()
		return body(ctx)
	})
}

// IsIgnorable reports errors that should not reach the user.
func IsIgnorable(err error) bool {
	return err == nil || errors.Is(err, ErrBusy) || errors.Is(err, context.Canceled)
}
