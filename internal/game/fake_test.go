package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/park285/deft-reversi-go/internal/engine"
	"github.com/park285/deft-reversi-go/internal/reversi"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// directCaller answers calls straight from an in-process engine.
type directCaller struct{ e *reversi.Engine }

func (d directCaller) CallInto(ctx context.Context, out any, op string, args ...any) error {
	env, err := reversidto.NewEnvelope(op, "test", args...)
	if err != nil {
		return err
	}
	reply := d.e.Handle(ctx, env)
	if reply.Error != "" {
		return &reversidto.RemoteError{Op: op, Message: reply.Error}
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Result, out)
}

// journal is the shared, ordered log of engine calls and renderer callbacks.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// filter keeps the entries whose name is in keep, in order.
func (j *journal) filter(keep ...string) []string {
	set := make(map[string]bool, len(keep))
	for _, k := range keep {
		set[k] = true
	}
	var out []string
	for _, e := range j.snapshot() {
		name := e
		for i, r := range e {
			if r == '(' {
				name = e[:i]
				break
			}
		}
		if set[name] {
			out = append(out, e)
		}
	}
	return out
}

func (j *journal) count(name string) int { return len(j.filter(name)) }

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// fakeEngine records every call and can script isPass/isEnd answers, fail an
// operation or hold one call until released.
type fakeEngine struct {
	inner *engine.Client
	j     *journal

	mu         sync.Mutex
	session    *Session
	checkBusy  bool
	notBusy    []string
	passScript []bool
	endScript  []bool
	gates      map[string]*gate
	failOp     string
	failErr    error
}

func newFakeEngine(t *testing.T, j *journal) *fakeEngine {
	t.Helper()
	e := reversi.NewEngine(reversi.Options{MaxDepth: 2, Seed: 7})
	return &fakeEngine{
		inner: engine.NewClient(directCaller{e: e}),
		j:     j,
		gates: make(map[string]*gate),
	}
}

// hold makes the next call of op wait until the returned release func runs.
func (f *fakeEngine) hold(op string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.gates[op] = g
	f.mu.Unlock()
	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

func (f *fakeEngine) enter(op, entry string) error {
	_, err := f.enterHeld(op, entry)
	return err
}

// enterHeld journals the call and reports whether it was held by a gate.
func (f *fakeEngine) enterHeld(op, entry string) (bool, error) {
	f.j.add("%s", entry)
	f.mu.Lock()
	g := f.gates[op]
	delete(f.gates, op)
	s, check := f.session, f.checkBusy
	failOp, failErr := f.failOp, f.failErr
	f.mu.Unlock()

	if check && s != nil && !s.Busy() {
		f.mu.Lock()
		f.notBusy = append(f.notBusy, entry)
		f.mu.Unlock()
	}
	if g != nil {
		close(g.entered)
		<-g.release
	}
	if op == failOp {
		return g != nil, failErr
	}
	return g != nil, nil
}

func (f *fakeEngine) scripted(script *[]bool) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*script) == 0 {
		return false, false
	}
	v := (*script)[0]
	*script = (*script)[1:]
	return v, true
}

func (f *fakeEngine) GetState(ctx context.Context, depth *int) (*reversidto.BoardStatus, error) {
	op, entry := "getState", "getState"
	if depth != nil {
		op, entry = "getStateDepth", fmt.Sprintf("getState(%d)", *depth)
	}
	held, err := f.enterHeld(op, entry)
	if err != nil {
		return nil, err
	}
	st, err := f.inner.GetState(ctx, depth)
	if err == nil && held {
		st.CurrentOpening = "held"
	}
	return st, err
}

func (f *fakeEngine) IsLegalMove(ctx context.Context, cell int) (bool, error) {
	if err := f.enter("isLegalMove", fmt.Sprintf("isLegalMove(%d)", cell)); err != nil {
		return false, err
	}
	return f.inner.IsLegalMove(ctx, cell)
}

func (f *fakeEngine) Put(ctx context.Context, cell int) error {
	if err := f.enter("put", fmt.Sprintf("put(%d)", cell)); err != nil {
		return err
	}
	return f.inner.Put(ctx, cell)
}

func (f *fakeEngine) AIPut(ctx context.Context, level int) error {
	if err := f.enter("aiPut", fmt.Sprintf("aiPut(%d)", level)); err != nil {
		return err
	}
	return f.inner.AIPut(ctx, level)
}

func (f *fakeEngine) Pass(ctx context.Context) error {
	if err := f.enter("pass", "pass"); err != nil {
		return err
	}
	return f.inner.Pass(ctx)
}

func (f *fakeEngine) IsPass(ctx context.Context) (bool, error) {
	if err := f.enter("isPass", "isPass"); err != nil {
		return false, err
	}
	if v, ok := f.scripted(&f.passScript); ok {
		return v, nil
	}
	return f.inner.IsPass(ctx)
}

func (f *fakeEngine) IsEnd(ctx context.Context) (bool, error) {
	if err := f.enter("isEnd", "isEnd"); err != nil {
		return false, err
	}
	if v, ok := f.scripted(&f.endScript); ok {
		return v, nil
	}
	return f.inner.IsEnd(ctx)
}

func (f *fakeEngine) Undo(ctx context.Context) (bool, error) {
	if err := f.enter("undo", "undo"); err != nil {
		return false, err
	}
	return f.inner.Undo(ctx)
}

func (f *fakeEngine) Redo(ctx context.Context) (bool, error) {
	if err := f.enter("redo", "redo"); err != nil {
		return false, err
	}
	return f.inner.Redo(ctx)
}

func (f *fakeEngine) GetRecord(ctx context.Context) (string, error) {
	if err := f.enter("getRecord", "getRecord"); err != nil {
		return "", err
	}
	return f.inner.GetRecord(ctx)
}

func (f *fakeEngine) NewGame(ctx context.Context) error {
	if err := f.enter("newGame", "newGame"); err != nil {
		return err
	}
	return f.inner.NewGame(ctx)
}

func (f *fakeEngine) SetHumanOpening(ctx context.Context, id int) error {
	if err := f.enter("setHumanOpening", fmt.Sprintf("setHumanOpening(%d)", id)); err != nil {
		return err
	}
	return f.inner.SetHumanOpening(ctx, id)
}

type endModal struct {
	black, white         int
	blackName, whiteName string
	record               string
}

// fakeRenderer journals callbacks. It runs under the session lock and must not call
// back into the session.
type fakeRenderer struct {
	j *journal

	mu       sync.Mutex
	statuses []*reversidto.BoardStatus
	names    [][2]string
	modals   []endModal
	errs     []error
	busy     []bool
}

func (r *fakeRenderer) Render(st *reversidto.BoardStatus, black, white string) {
	if st == nil {
		r.j.add("blank")
	} else {
		r.j.add("render")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	r.names = append(r.names, [2]string{black, white})
}

func (r *fakeRenderer) DrawPassMessage() { r.j.add("drawPass") }

func (r *fakeRenderer) ShowEndGameModal(b, w int, bn, wn, record string) {
	r.j.add("endModal")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modals = append(r.modals, endModal{b, w, bn, wn, record})
}

func (r *fakeRenderer) Notify(err error) {
	r.j.add("notify")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fakeRenderer) SetBusy(busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, busy)
}

func (r *fakeRenderer) rendered() []*reversidto.BoardStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*reversidto.BoardStatus(nil), r.statuses...)
}

func (r *fakeRenderer) lastStatus(t *testing.T) *reversidto.BoardStatus {
	t.Helper()
	all := r.rendered()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i] != nil {
			return all[i]
		}
	}
	t.Fatalf("nothing rendered")
	return nil
}

type harness struct {
	s   *Session
	eng *fakeEngine
	r   *fakeRenderer
	j   *journal
}

func newHarness(t *testing.T, set Settings, tweak ...func(*Config)) *harness {
	t.Helper()
	j := &journal{}
	eng := newFakeEngine(t, j)
	r := &fakeRenderer{j: j}
	cfg := Config{Settings: set}
	for _, fn := range tweak {
		fn(&cfg)
	}
	s := New(eng, r, cfg)
	eng.session = s
	t.Cleanup(s.Close)
	return &harness{s: s, eng: eng, r: r, j: j}
}

var errEngineDown = errors.New("evaluator failed to load")
