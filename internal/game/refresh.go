package game

import (
	"context"

	"go.uber.org/zap"
)

// evalSchedule lists the depths of a progressive evaluation: step apart, ending at
// depth, starting at depth%step (or step when that is zero). 8 with step 3 gives
// 2, 5, 8.
func evalSchedule(depth, step int) []int {
	if depth <= 0 {
		return nil
	}
	if step <= 0 {
		step = defaultEvalStep
	}
	start := depth % step
	if start == 0 {
		start = step
	}
	out := make([]int, 0, depth/step+1)
	for d := start; d <= depth; d += step {
		out = append(out, d)
	}
	return out
}

// startRefresh invalidates any running refresh and repaints in the background:
// a single cheap paint, or the progressive evaluation when it is shown.
func (s *Session) startRefresh() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	eval := s.set.EvalEnabled
	depth, step := s.set.EvalDepth, s.set.EvalStep
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if eval {
			err = s.refreshEval(s.ctx, gen, evalSchedule(depth, step))
		} else {
			err = s.refreshPlain(s.ctx, gen)
		}
		if err != nil && s.current(gen, eval) {
			s.report("refresh", err)
		}
	}()
}

// current reports whether a refresh started at gen may still paint.
func (s *Session) current(gen uint64, eval bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && (!eval || s.set.EvalEnabled)
}

func (s *Session) refreshPlain(ctx context.Context, gen uint64) error {
	if err := s.waitIdle(ctx); err != nil {
		return nil
	}
	if !s.current(gen, false) {
		return nil
	}
	st, err := s.eng.GetState(ctx, nil)
	if err != nil {
		return err
	}
	s.paintIf(gen, st)
	return nil
}

func (s *Session) refreshEval(ctx context.Context, gen uint64, depths []int) error {
	for _, depth := range depths {
		if err := s.waitIdle(ctx); err != nil {
			return nil
		}
		if !s.current(gen, true) {
			return nil
		}
		d := depth
		st, err := s.eng.GetState(ctx, &d)
		if err != nil {
			return err
		}
		if !s.current(gen, true) || !s.paintIf(gen, st) {
			s.logger.Debug("stale evaluation dropped", zap.Int("depth", depth))
			return nil
		}
	}
	return nil
}
