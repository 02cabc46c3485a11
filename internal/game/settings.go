package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// HumanOpeningNone disables the human opening.
const HumanOpeningNone = "none"

// DefaultPlayerNames labels the sides for the current AI setup.
func DefaultPlayerNames(aiEnabled bool, aiSide reversidto.Side, level int) (black, white string) {
	if !aiEnabled {
		return "First", "Second"
	}
	ai := fmt.Sprintf("AI Lv %d", level)
	if aiSide == reversidto.Black {
		return ai, "You"
	}
	return "You", ai
}

func (s *Session) updateSettings(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.set)
	snapshot := s.set
	s.mu.Unlock()
	if s.cfg.OnSettings != nil {
		s.cfg.OnSettings(snapshot)
	}
}

func (s *Session) SetEnableAI(enabled bool) {
	s.updateSettings(func(set *Settings) { set.AIEnabled = enabled })
}

func (s *Session) SetAILevel(level int) {
	if level <= 0 {
		return
	}
	s.updateSettings(func(set *Settings) { set.AILevel = level })
}

func (s *Session) SetAITurn(side reversidto.Side) {
	if side != reversidto.Black && side != reversidto.White {
		return
	}
	s.updateSettings(func(set *Settings) { set.AISide = side })
}

// SetPlayerName overrides the labels; empty names restore the defaults.
func (s *Session) SetPlayerName(black, white string) {
	s.updateSettings(func(set *Settings) {
		set.BlackName = strings.TrimSpace(black)
		set.WhiteName = strings.TrimSpace(white)
	})
}

// SwitchShowEval toggles the progressive evaluation and repaints.
func (s *Session) SwitchShowEval() {
	s.updateSettings(func(set *Settings) { set.EvalEnabled = !set.EvalEnabled })
	s.startRefresh()
}

// SetHumanOpening selects an opening line by id. "none" is ignored. The engine call
// waits for the busy guard.
func (s *Session) SetHumanOpening(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" || value == HumanOpeningNone {
		return nil
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		s.logger.Warn("human opening ignored", zap.String("value", value))
		return nil
	}
	if err := s.acquireWait(ctx, nil); err != nil {
		return err
	}
	defer s.finish()
	if err := s.eng.SetHumanOpening(ctx, id); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidOpening, value, err)
	}
	s.updateSettings(func(set *Settings) { set.HumanOpening = value })
	return nil
}
