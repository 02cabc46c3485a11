package game

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/park285/deft-reversi-go/internal/events"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const (
	cellD3 = 19
	cellA1 = 0
)

var (
	humanOnly = Settings{AIEnabled: false, AILevel: 1}
	aiWhite   = Settings{AIEnabled: true, AILevel: 1, AISide: reversidto.White}
	aiBlack   = Settings{AIEnabled: true, AILevel: 1, AISide: reversidto.Black}
)

func TestBoardClick_HumanOnlyRendersOnce(t *testing.T) {
	h := newHarness(t, humanOnly)
	if err := h.s.BoardClick(context.Background(), cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	h.s.Wait()

	if got := h.j.filter("put"); !reflect.DeepEqual(got, []string{"put(19)"}) {
		t.Fatalf("expected one put, got %v", got)
	}
	if n := h.j.count("aiPut"); n != 0 {
		t.Fatalf("expected no aiPut, got %d", n)
	}
	if n := h.j.count("render"); n != 1 {
		t.Fatalf("expected exactly one render, got %d (%v)", n, h.j.snapshot())
	}
	if h.s.Busy() {
		t.Fatalf("busy after click")
	}
}

func TestBoardClick_IllegalIsNoop(t *testing.T) {
	for _, set := range []Settings{humanOnly, aiWhite} {
		h := newHarness(t, set)
		if err := h.s.BoardClick(context.Background(), cellA1); err != nil {
			t.Fatalf("BoardClick: %v", err)
		}
		h.s.Wait()
		if n := h.j.count("put") + h.j.count("aiPut") + h.j.count("render"); n != 0 {
			t.Fatalf("illegal click changed something: %v", h.j.snapshot())
		}
		if h.s.Busy() {
			t.Fatalf("busy after illegal click")
		}
		rec, err := h.eng.inner.GetRecord(context.Background())
		if err != nil || rec != "" {
			t.Fatalf("record changed: %q %v", rec, err)
		}
	}
}

func TestBoardClick_AIAnswersWhileBusy(t *testing.T) {
	h := newHarness(t, aiWhite)
	h.eng.checkBusy = true

	if err := h.s.BoardClick(context.Background(), cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	h.s.Wait()

	want := []string{"put(19)", "render", "aiPut(1)", "render"}
	if got := h.j.filter("put", "aiPut", "render"); !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
	if len(h.eng.notBusy) != 0 {
		t.Fatalf("engine called outside the guard: %v", h.eng.notBusy)
	}
	if h.s.Busy() {
		t.Fatalf("busy after sequence")
	}
	if got := h.r.busy; !reflect.DeepEqual(got, []bool{true, false}) {
		t.Fatalf("busy observer saw %v", got)
	}
	if st := h.r.lastStatus(t); st.NextTurn != reversidto.Black || st.Stones() != 6 {
		t.Fatalf("expected human to move after AI reply, got %+v", st)
	}
}

func TestBoardClick_ConsecutivePasses(t *testing.T) {
	h := newHarness(t, aiWhite)
	// start-of-click check, then two passes before the AI finally has a move
	h.eng.passScript = []bool{false, true, true, false}

	if err := h.s.BoardClick(context.Background(), cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	h.s.Wait()

	want := []string{"put(19)", "drawPass", "pass", "drawPass", "pass", "aiPut(1)"}
	if got := h.j.filter("put", "aiPut", "pass", "drawPass"); !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
}

func TestBoardClick_EndOfGameReported(t *testing.T) {
	var got []Result
	h := newHarness(t, humanOnly, func(c *Config) {
		c.OnEnd = func(_ context.Context, res Result) { got = append(got, res) }
	})
	h.eng.endScript = []bool{false, true}

	if err := h.s.BoardClick(context.Background(), cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	h.s.Wait()

	if len(h.r.modals) != 1 {
		t.Fatalf("expected one end modal, got %d", len(h.r.modals))
	}
	m := h.r.modals[0]
	if m.black != 4 || m.white != 1 || m.record != "D3" || m.blackName != "First" || m.whiteName != "Second" {
		t.Fatalf("unexpected end modal %+v", m)
	}
	if len(got) != 1 || got[0].Winner() != reversidto.Black || got[0].Record != "D3" {
		t.Fatalf("unexpected end results %+v", got)
	}
}

func TestBoardClick_FinishedGameShowsResultAgain(t *testing.T) {
	var ended int
	h := newHarness(t, humanOnly, func(c *Config) {
		c.OnEnd = func(context.Context, Result) { ended++ }
	})
	// the second click starts on a finished board
	h.eng.endScript = []bool{false, true, true}
	ctx := context.Background()

	if err := h.s.BoardClick(ctx, cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	if err := h.s.BoardClick(ctx, 26); err != nil {
		t.Fatalf("BoardClick after end: %v", err)
	}
	h.s.Wait()

	if len(h.r.modals) != 2 || h.r.modals[1] != h.r.modals[0] {
		t.Fatalf("expected the same end modal twice, got %+v", h.r.modals)
	}
	if ended != 1 {
		t.Fatalf("finished game reported %d times", ended)
	}
	if got := h.j.filter("put"); !reflect.DeepEqual(got, []string{"put(19)"}) {
		t.Fatalf("click on a finished board reached put: %v", got)
	}
}

func TestBoardClick_PassLoopBounded(t *testing.T) {
	for name, set := range map[string]Settings{"human": humanOnly, "ai": aiWhite} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, set)
			// an engine that never stops asking for a pass
			for i := 0; i < 4*maxPlies; i++ {
				h.eng.passScript = append(h.eng.passScript, true)
			}

			done := make(chan error, 1)
			go func() { done <- h.s.BoardClick(context.Background(), cellD3) }()
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("BoardClick: %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("pass loop did not terminate")
			}
			h.s.Wait()

			if n := h.j.count("pass"); n == 0 || n > reversidto.BoardCells {
				t.Fatalf("pass called %d times", n)
			}
			if n := h.j.count("aiPut") + h.j.count("put"); n != 0 {
				t.Fatalf("moves played during the pass loop: %v", h.j.filter("put", "aiPut"))
			}
			if h.s.Busy() {
				t.Fatalf("busy after the pass loop")
			}
		})
	}
}

func TestBoardClick_RejectedWhileBusy(t *testing.T) {
	h := newHarness(t, humanOnly)
	entered, release := h.eng.hold("put")
	defer release()

	done := make(chan error, 1)
	go func() { done <- h.s.BoardClick(context.Background(), cellD3) }()
	<-entered

	if !h.s.Busy() {
		t.Fatalf("expected busy while put is in flight")
	}
	if err := h.s.BoardClick(context.Background(), 26); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := h.s.Undo(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for undo, got %v", err)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("first click: %v", err)
	}
	if got := h.j.filter("put", "undo"); !reflect.DeepEqual(got, []string{"put(19)"}) {
		t.Fatalf("rejected actions reached the engine: %v", got)
	}
}

func TestHandle_DropsClicksWhileBusy(t *testing.T) {
	h := newHarness(t, humanOnly)
	entered, release := h.eng.hold("put")

	h.s.Handle(events.BoardClick{Cell: cellD3})
	<-entered
	h.s.Handle(events.BoardClick{Cell: 26})
	h.s.Handle(events.RedoClick{})
	release()
	h.s.Wait()

	if got := h.j.filter("put", "redo"); !reflect.DeepEqual(got, []string{"put(19)"}) {
		t.Fatalf("expected only the first click to run, got %v", got)
	}
}

func TestHandle_EngineFailureNotifies(t *testing.T) {
	h := newHarness(t, humanOnly)
	h.eng.failOp, h.eng.failErr = "put", errEngineDown

	bus := events.NewBus()
	detach := h.s.Attach(bus)
	defer detach()
	bus.Publish(events.BoardClick{Cell: cellD3})
	h.s.Wait()

	if len(h.r.errs) != 1 || !errors.Is(h.r.errs[0], errEngineDown) {
		t.Fatalf("expected one notification, got %v", h.r.errs)
	}
	if h.s.Busy() {
		t.Fatalf("guard not released after failure")
	}
}

func TestUndo_LandsOnHumanTurn(t *testing.T) {
	h := newHarness(t, aiWhite)
	ctx := context.Background()

	for ply := 0; ply < 4; ply++ {
		st, err := h.eng.inner.GetState(ctx, nil)
		if err != nil {
			t.Fatalf("GetState: %v", err)
		}
		cell := -1
		for c := 0; c < reversidto.BoardCells; c++ {
			if st.IsLegal(c) {
				cell = c
				break
			}
		}
		if cell < 0 {
			break
		}
		if err := h.s.BoardClick(ctx, cell); err != nil {
			t.Fatalf("BoardClick: %v", err)
		}
	}
	before, _ := h.eng.inner.GetRecord(ctx)

	for i := 0; i < 3; i++ {
		if err := h.s.Undo(ctx); err != nil {
			t.Fatalf("Undo: %v", err)
		}
		st, err := h.eng.inner.GetState(ctx, nil)
		if err != nil {
			t.Fatalf("GetState: %v", err)
		}
		if st.NextTurn != reversidto.Black && st.Stones() != 4 {
			t.Fatalf("undo left the AI to move: %+v", st)
		}
	}
	after, _ := h.eng.inner.GetRecord(ctx)
	if len(after) >= len(before) {
		t.Fatalf("undo did not walk back: before=%q after=%q", before, after)
	}
}

func TestUndo_KeepsAIOpeningMove(t *testing.T) {
	h := newHarness(t, aiBlack)
	ctx := context.Background()
	if err := h.s.NewGame(ctx); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if err := h.s.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	st, err := h.eng.inner.GetState(ctx, nil)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if st.Stones() != 5 || st.NextTurn != reversidto.White {
		t.Fatalf("AI opening move was taken back: %+v", st)
	}
	if n := h.j.count("undo"); n != 0 {
		t.Fatalf("expected no undo call, got %d", n)
	}
}

func TestUndoRedo_HumanOnlySinglePly(t *testing.T) {
	h := newHarness(t, humanOnly)
	ctx := context.Background()
	for _, cell := range []int{cellD3, 18} { // d3 c3
		if err := h.s.BoardClick(ctx, cell); err != nil {
			t.Fatalf("BoardClick(%d): %v", cell, err)
		}
	}
	if err := h.s.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if rec, _ := h.eng.inner.GetRecord(ctx); rec != "D3" {
		t.Fatalf("expected D3 after one undo, got %q", rec)
	}
	if err := h.s.Redo(ctx); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if rec, _ := h.eng.inner.GetRecord(ctx); rec != "D3C3" {
		t.Fatalf("expected D3C3 after redo, got %q", rec)
	}
	if n := h.j.count("undo"); n != 1 {
		t.Fatalf("expected a single undo call, got %d", n)
	}
	if err := h.s.Redo(ctx); err != nil {
		t.Fatalf("Redo with nothing to redo: %v", err)
	}
	if len(h.r.modals) != 0 {
		t.Fatalf("end modal shown mid-game: %+v", h.r.modals)
	}
}

func TestRedo_OntoFinishedGameShowsResult(t *testing.T) {
	var ended int
	h := newHarness(t, humanOnly, func(c *Config) {
		c.OnEnd = func(context.Context, Result) { ended++ }
	})
	ctx := context.Background()
	if err := h.s.BoardClick(ctx, cellD3); err != nil {
		t.Fatalf("BoardClick: %v", err)
	}
	if err := h.s.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	h.eng.endScript = []bool{true}
	if err := h.s.Redo(ctx); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if len(h.r.modals) != 1 || h.r.modals[0].record != "D3" {
		t.Fatalf("expected the end modal after redo, got %+v", h.r.modals)
	}
	if ended != 0 {
		t.Fatalf("redo must not report the game again")
	}
}

func TestNewGame_AIOpensAsBlack(t *testing.T) {
	h := newHarness(t, aiBlack)
	if err := h.s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	want := []string{"newGame", "render", "aiPut(1)", "render"}
	if got := h.j.filter("newGame", "aiPut", "render"); !reflect.DeepEqual(got, want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
	if st := h.r.lastStatus(t); st.Stones() != 5 {
		t.Fatalf("expected the AI opening move, got %+v", st)
	}
}

func TestNewGame_WaitsForRunningAction(t *testing.T) {
	h := newHarness(t, humanOnly)
	entered, release := h.eng.hold("put")

	h.s.Handle(events.BoardClick{Cell: cellD3})
	<-entered

	done := make(chan error, 1)
	go func() { done <- h.s.NewGame(context.Background()) }()

	// the blank paint shows the new game is waiting
	deadline := time.After(2 * time.Second)
	for h.j.count("blank") == 0 {
		select {
		case <-deadline:
			t.Fatalf("new game did not blank the board while waiting")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if n := h.j.count("newGame"); n != 0 {
		t.Fatalf("newGame ran while busy")
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	h.s.Wait()
	if rec, _ := h.eng.inner.GetRecord(context.Background()); rec != "" {
		t.Fatalf("expected a fresh game, got %q", rec)
	}
}

func TestRefresh_StaleEvaluationDiscarded(t *testing.T) {
	h := newHarness(t, humanOnly)
	entered, release := h.eng.hold("getStateDepth")

	// eval on starts the progressive loop; its first depth is held mid-flight
	h.s.SwitchShowEval()
	<-entered

	if err := h.s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	release()
	h.s.Wait()

	for _, st := range h.r.rendered() {
		if st != nil && st.CurrentOpening == "held" {
			t.Fatalf("stale evaluation was painted after the generation moved on")
		}
	}
	if n := h.j.count("newGame"); n != 1 {
		t.Fatalf("expected one newGame, got %d", n)
	}
	last := h.r.lastStatus(t)
	if len(last.Eval) != reversidto.BoardCells || last.Stones() != 4 {
		t.Fatalf("expected the new game's evaluation last, got %+v", last)
	}
}

func TestRefresh_ProgressiveDepths(t *testing.T) {
	h := newHarness(t, Settings{EvalEnabled: false, EvalDepth: 8, EvalStep: 3})
	h.s.SwitchShowEval()
	h.s.Wait()
	want := []string{"getState(2)", "render", "getState(5)", "render", "getState(8)", "render"}
	if got := h.j.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("refresh = %v, want %v", got, want)
	}

	h.s.SwitchShowEval()
	h.s.Wait()
	if got := h.j.snapshot()[len(want):]; !reflect.DeepEqual(got, []string{"getState", "render"}) {
		t.Fatalf("plain refresh = %v", got)
	}
}

func TestDeepHint(t *testing.T) {
	h := newHarness(t, humanOnly)
	ctx := context.Background()

	for _, depth := range []int{0, 25} {
		if err := h.s.DeepHint(ctx, depth); !errors.Is(err, ErrInvalidDepth) {
			t.Fatalf("depth %d: expected ErrInvalidDepth, got %v", depth, err)
		}
	}
	if n := len(h.j.snapshot()); n != 0 {
		t.Fatalf("invalid depth reached the engine: %v", h.j.snapshot())
	}

	genBefore := h.s.Generation()
	if err := h.s.DeepHint(ctx, 3); err != nil {
		t.Fatalf("DeepHint: %v", err)
	}
	want := []string{"getState", "render", "getState(3)", "render"}
	if got := h.j.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("deep hint = %v, want %v", got, want)
	}
	if h.s.Generation() <= genBefore {
		t.Fatalf("deep hint must invalidate running refreshes")
	}
	if st := h.r.lastStatus(t); len(st.Eval) != reversidto.BoardCells {
		t.Fatalf("expected evaluations in the final paint")
	}
}

func TestSetHumanOpening(t *testing.T) {
	var saved []Settings
	h := newHarness(t, aiWhite, func(c *Config) {
		c.OnSettings = func(s Settings) { saved = append(saved, s) }
	})
	ctx := context.Background()

	for _, v := range []string{"none", "", "tiger"} {
		if err := h.s.SetHumanOpening(ctx, v); err != nil {
			t.Fatalf("SetHumanOpening(%q): %v", v, err)
		}
	}
	if n := h.j.count("setHumanOpening"); n != 0 {
		t.Fatalf("ignored values reached the engine")
	}
	if err := h.s.SetHumanOpening(ctx, "1"); err != nil {
		t.Fatalf("SetHumanOpening(1): %v", err)
	}
	if err := h.s.SetHumanOpening(ctx, "999"); !errors.Is(err, ErrInvalidOpening) {
		t.Fatalf("expected ErrInvalidOpening, got %v", err)
	}
	if len(saved) != 1 || saved[0].HumanOpening != "1" {
		t.Fatalf("expected one saved opening, got %+v", saved)
	}
	if h.s.Busy() {
		t.Fatalf("guard held after SetHumanOpening")
	}
}

func TestSetHumanOpening_ResumesEvaluation(t *testing.T) {
	h := newHarness(t, Settings{EvalDepth: 8, EvalStep: 3})
	entered, release := h.eng.hold("getStateDepth")
	defer release()

	h.s.SwitchShowEval()
	<-entered

	if err := h.s.SetHumanOpening(context.Background(), "1"); err != nil {
		t.Fatalf("SetHumanOpening: %v", err)
	}
	release()
	h.s.Wait()

	all := h.j.snapshot()
	at := -1
	for i, e := range all {
		if e == "setHumanOpening(1)" {
			at = i
		}
	}
	if at < 0 {
		t.Fatalf("setHumanOpening not called: %v", all)
	}
	var renders int
	for _, e := range all[at+1:] {
		if e == "render" {
			renders++
		}
	}
	if renders != 3 {
		t.Fatalf("expected the evaluation to run again after the opening, got %v", all[at+1:])
	}
	last := h.r.lastStatus(t)
	if len(last.Eval) != reversidto.BoardCells || last.CurrentOpening == "held" {
		t.Fatalf("expected a fresh evaluation last, got %+v", last)
	}
}

func TestSettingsAndNames(t *testing.T) {
	var saved int
	h := newHarness(t, aiWhite, func(c *Config) {
		c.OnSettings = func(Settings) { saved++ }
	})

	if b, w := h.s.Names(); b != "You" || w != "AI Lv 1" {
		t.Fatalf("names = %q %q", b, w)
	}
	h.s.Handle(events.SetAITurn{Side: reversidto.Black})
	h.s.Handle(events.SetAILevel{Level: 12})
	if b, w := h.s.Names(); b != "AI Lv 12" || w != "You" {
		t.Fatalf("names = %q %q", b, w)
	}
	h.s.Handle(events.SetEnableAI{Enabled: false})
	if b, w := h.s.Names(); b != "First" || w != "Second" {
		t.Fatalf("names = %q %q", b, w)
	}
	h.s.Handle(events.SetPlayerName{Black: "Alice", White: "Bob"})
	if b, w := h.s.Names(); b != "Alice" || w != "Bob" {
		t.Fatalf("names = %q %q", b, w)
	}
	h.s.Handle(events.SetAILevel{Level: 0})
	h.s.Handle(events.SetAITurn{Side: "red"})

	set := h.s.Settings()
	if set.AIEnabled || set.AILevel != 12 || set.AISide != reversidto.Black {
		t.Fatalf("unexpected settings %+v", set)
	}
	if saved != 4 {
		t.Fatalf("expected 4 saves, got %d", saved)
	}
}

func TestDefaultPlayerNames(t *testing.T) {
	cases := []struct {
		ai           bool
		side         reversidto.Side
		level        int
		black, white string
	}{
		{false, reversidto.White, 10, "First", "Second"},
		{true, reversidto.White, 10, "You", "AI Lv 10"},
		{true, reversidto.Black, 3, "AI Lv 3", "You"},
	}
	for _, tc := range cases {
		b, w := DefaultPlayerNames(tc.ai, tc.side, tc.level)
		if b != tc.black || w != tc.white {
			t.Fatalf("DefaultPlayerNames(%v,%s,%d) = %q,%q", tc.ai, tc.side, tc.level, b, w)
		}
	}
}

func TestEvalSchedule(t *testing.T) {
	cases := []struct {
		depth, step int
		want        []int
	}{
		{8, 3, []int{2, 5, 8}},
		{9, 3, []int{3, 6, 9}},
		{1, 3, []int{1}},
		{7, 0, []int{1, 4, 7}},
		{0, 3, nil},
	}
	for _, tc := range cases {
		if got := evalSchedule(tc.depth, tc.step); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("evalSchedule(%d,%d) = %v, want %v", tc.depth, tc.step, got, tc.want)
		}
	}
}
