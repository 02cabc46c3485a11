package game

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// begin takes the guard for an action that must not queue.
func (s *Session) begin(action string) error {
	if !s.tryAcquire() {
		s.logger.Debug("busy, click ignored", zap.String("action", action))
		return ErrBusy
	}
	return nil
}

// finish releases the guard and restarts the progressive evaluation when shown.
func (s *Session) finish() {
	s.release()
	if s.Settings().EvalEnabled {
		s.startRefresh()
	}
}

// BoardClick plays cell for the human, then lets the AI answer. Illegal cells are a
// no-op; a click while busy returns ErrBusy.
func (s *Session) BoardClick(ctx context.Context, cell int) error {
	if err := s.begin("boardClick"); err != nil {
		return err
	}
	defer s.finish()
	return s.boardClick(ctx, cell)
}

func (s *Session) boardClick(ctx context.Context, cell int) error {
	end, err := s.eng.IsEnd(ctx)
	if err != nil {
		return err
	}
	if end {
		s.logger.Debug("game over, showing result", zap.Int("cell", cell))
		_, err := s.showEnd(ctx)
		return err
	}

	// A pass left pending by undo or a settings change is resolved first.
	pass, err := s.eng.IsPass(ctx)
	if err != nil {
		return err
	}
	if pass {
		st, err := s.passLoop(ctx, nil)
		if err != nil {
			return err
		}
		return s.aiIfOwned(ctx, st)
	}

	set := s.Settings()
	if set.AIEnabled {
		st, err := s.eng.GetState(ctx, nil)
		if err != nil {
			return err
		}
		if st.NextTurn == set.AISide {
			return s.aiSequence(ctx)
		}
	}

	legal, err := s.eng.IsLegalMove(ctx, cell)
	if err != nil {
		return err
	}
	if !legal {
		s.logger.Debug("illegal move ignored", zap.String("cell", reversidto.CellName(cell)))
		return nil
	}
	if err := s.eng.Put(ctx, cell); err != nil {
		return err
	}
	st, err := s.renderNow(ctx)
	if err != nil {
		return err
	}

	end, err = s.eng.IsEnd(ctx)
	if err != nil {
		return err
	}
	if end {
		return s.reportEnd(ctx)
	}
	st, err = s.passLoop(ctx, st)
	if err != nil {
		return err
	}
	return s.aiIfOwned(ctx, st)
}

// aiIfOwned runs the AI when it is enabled and st has it to move.
func (s *Session) aiIfOwned(ctx context.Context, st *reversidto.BoardStatus) error {
	set := s.Settings()
	if !set.AIEnabled || st == nil || st.NextTurn != set.AISide {
		return nil
	}
	return s.aiSequence(ctx)
}

// passLoop shows and plays passes until the side to move has a move. It returns the
// last painted snapshot, or last when no pass was played.
func (s *Session) passLoop(ctx context.Context, last *reversidto.BoardStatus) (*reversidto.BoardStatus, error) {
	for i := 0; i < maxPlies; i++ {
		pass, err := s.eng.IsPass(ctx)
		if err != nil {
			return nil, err
		}
		if !pass {
			return last, nil
		}
		if last, err = s.playPass(ctx); err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (s *Session) playPass(ctx context.Context) (*reversidto.BoardStatus, error) {
	s.drawPassMessage()
	if err := s.sleep(ctx, s.cfg.PassDelay); err != nil {
		return nil, err
	}
	if err := s.eng.Pass(ctx); err != nil {
		return nil, err
	}
	return s.renderNow(ctx)
}

// aiSequence lets the AI move, passing for the human as often as needed, until
// the human has a move or the game ends.
func (s *Session) aiSequence(ctx context.Context) error {
	for i := 0; i < maxPlies; i++ {
		level := s.Settings().AILevel
		start := time.Now()
		if err := s.eng.AIPut(ctx, level); err != nil {
			return err
		}
		st, err := s.renderNow(ctx)
		if err != nil {
			return err
		}
		s.logger.Debug("ai moved",
			zap.Int("level", level),
			zap.Intp("cell", st.LastMove),
			zap.Duration("took", time.Since(start)),
		)

		end, err := s.eng.IsEnd(ctx)
		if err != nil {
			return err
		}
		if end {
			return s.reportEnd(ctx)
		}
		pass, err := s.eng.IsPass(ctx)
		if err != nil {
			return err
		}
		if !pass {
			return nil
		}
		if _, err := s.playPass(ctx); err != nil {
			return err
		}
	}
	return nil
}

// reportEnd shows the result of a game that just finished and hands it to OnEnd.
func (s *Session) reportEnd(ctx context.Context) error {
	res, err := s.showEnd(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("game over",
		zap.Int("black", res.BlackScore),
		zap.Int("white", res.WhiteScore),
		zap.String("record", res.Record),
	)
	if s.cfg.OnEnd != nil {
		s.cfg.OnEnd(ctx, res)
	}
	return nil
}

// showEnd counts the stones of the final position and shows the end-of-game summary.
func (s *Session) showEnd(ctx context.Context) (Result, error) {
	st, err := s.eng.GetState(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	record, err := s.eng.GetRecord(ctx)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	black, white := s.namesLocked()
	res := Result{
		BlackScore: reversidto.CountBits(st.Black),
		WhiteScore: reversidto.CountBits(st.White),
		BlackName:  black,
		WhiteName:  white,
		Record:     record,
		AIEnabled:  s.set.AIEnabled,
		AILevel:    s.set.AILevel,
		AISide:     s.set.AISide,
		FinishedAt: time.Now(),
	}
	s.renderer.ShowEndGameModal(res.BlackScore, res.WhiteScore, black, white, record)
	return res, nil
}

// Undo takes back the last ply. With the AI enabled it keeps walking back until the
// human is to move again.
func (s *Session) Undo(ctx context.Context) error {
	if err := s.begin("doOverClick"); err != nil {
		return err
	}
	defer s.finish()
	return s.undo(ctx)
}

func (s *Session) undo(ctx context.Context) error {
	set := s.Settings()
	if !set.AIEnabled {
		ok, err := s.eng.Undo(ctx)
		if err != nil || !ok {
			return err
		}
		_, err = s.renderNow(ctx)
		return err
	}

	for i := 0; i < s.cfg.UndoLimit; i++ {
		before, err := s.eng.GetState(ctx, nil)
		if err != nil {
			return err
		}
		// never take back the AI's opening move
		if before.Stones() == 5 && set.AISide == reversidto.Black {
			break
		}
		ok, err := s.eng.Undo(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		after, err := s.eng.GetState(ctx, nil)
		if err != nil {
			return err
		}
		if after.NextTurn != set.AISide {
			pass, err := s.eng.IsPass(ctx)
			if err != nil {
				return err
			}
			if !pass {
				break
			}
		}
		if _, err := s.renderNow(ctx); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.cfg.UndoStepDelay); err != nil {
			return err
		}
	}
	_, err := s.renderNow(ctx)
	return err
}

// Redo re-applies exactly one ply.
func (s *Session) Redo(ctx context.Context) error {
	if err := s.begin("redoClick"); err != nil {
		return err
	}
	defer s.finish()
	return s.redo(ctx)
}

func (s *Session) redo(ctx context.Context) error {
	ok, err := s.eng.Redo(ctx)
	if err != nil || !ok {
		return err
	}
	if _, err := s.renderNow(ctx); err != nil {
		return err
	}
	// the game was reported when it first ended
	end, err := s.eng.IsEnd(ctx)
	if err != nil || !end {
		return err
	}
	_, err = s.showEnd(ctx)
	return err
}

// NewGame waits for any running action, blanking the board meanwhile, then starts
// over. When the AI plays black it opens after a short delay.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.acquireWait(ctx, s.Blank); err != nil {
		return err
	}
	err := s.newGame(ctx)
	s.release()
	s.bumpGeneration()
	if err == nil && s.Settings().EvalEnabled {
		s.startRefresh()
	}
	return err
}

func (s *Session) newGame(ctx context.Context) error {
	if err := s.eng.NewGame(ctx); err != nil {
		return err
	}
	if _, err := s.renderNow(ctx); err != nil {
		return err
	}
	set := s.Settings()
	if !set.AIEnabled || set.AISide != reversidto.Black {
		return nil
	}
	if err := s.sleep(ctx, s.cfg.AIFirstDelay); err != nil {
		return err
	}
	return s.aiSequence(ctx)
}

// DeepHint paints the position, then its evaluation at depth. The result stays on
// screen until the next action.
func (s *Session) DeepHint(ctx context.Context, depth int) error {
	if depth < MinHintDepth || depth > MaxHintDepth {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidDepth, depth, MinHintDepth, MaxHintDepth)
	}
	if err := s.begin("deepHintClick"); err != nil {
		return err
	}
	defer s.release()

	gen := s.Generation()
	st, err := s.eng.GetState(ctx, nil)
	if err != nil {
		return err
	}
	s.paintIf(gen, st)

	start := time.Now()
	st, err = s.eng.GetState(ctx, &depth)
	if err != nil {
		return err
	}
	s.paintIf(gen, st)
	s.bumpGeneration()
	s.logger.Info("deep hint computed", zap.Int("depth", depth), zap.Duration("took", time.Since(start)))
	return nil
}
