package reversi

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const defaultMaxDepth = 10

// firstMoves are the four symmetric openings the AI picks from on an empty board.
var firstMoves = [4]int{37, 44, 19, 26} // f5 e6 d3 c4

var (
	ErrNoMove          = errors.New("no legal move for the side to move")
	ErrUnknownOpening  = errors.New("unknown opening")
	ErrEngineNotLoaded = errors.New("engine not loaded")
)

type Options struct {
	// MaxDepth caps every search, including deep evaluations.
	MaxDepth int
	Book     *Book
	Seed     int64
	Logger   *zap.Logger
	// LoadErr marks the engine as failed to load; every call reports it.
	LoadErr error
}

// Engine owns one game and answers envelopes for it. Safe for concurrent use.
type Engine struct {
	mu           sync.Mutex
	game         *Game
	book         *Book
	humanOpening int // -1 when unset
	maxDepth     int
	rand         *rand.Rand
	logger       *zap.Logger
	loadErr      error
}

func NewEngine(opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	book := opts.Book
	if book == nil {
		b, err := DefaultBook()
		if err != nil && opts.LoadErr == nil {
			opts.LoadErr = err
		}
		book = b
	}
	if book == nil {
		book = &Book{}
	}
	return &Engine{
		game:         NewGame(),
		book:         book,
		humanOpening: -1,
		maxDepth:     opts.MaxDepth,
		rand:         rand.New(rand.NewSource(opts.Seed)),
		logger:       opts.Logger,
		loadErr:      opts.LoadErr,
	}
}

// Ready reports whether the engine loaded successfully.
func (e *Engine) Ready() error {
	if e.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrEngineNotLoaded, e.loadErr)
	}
	return nil
}

// Handle executes one envelope and builds its reply.
func (e *Engine) Handle(ctx context.Context, env reversidto.Envelope) reversidto.Reply {
	if env.Op == reversidto.OpReady {
		if err := e.Ready(); err != nil {
			return reversidto.ErrorReply(env.ID, err)
		}
		return reversidto.ResultReply(env.ID, reversidto.ReadyResult)
	}
	if err := e.Ready(); err != nil {
		return reversidto.ErrorReply(env.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return reversidto.ErrorReply(env.ID, err)
	}

	result, err := e.dispatch(env)
	if err != nil {
		e.logger.Debug("engine call failed", zap.String("op", env.Op), zap.Error(err))
		return reversidto.ErrorReply(env.ID, err)
	}
	return reversidto.ResultReply(env.ID, result)
}

func (e *Engine) dispatch(env reversidto.Envelope) (any, error) {
	switch env.Op {
	case reversidto.OpGetState:
		var depth *int
		if len(env.Args) > 0 {
			if err := env.Arg(0, &depth); err != nil {
				return nil, err
			}
		}
		return e.State(depth), nil
	case reversidto.OpIsLegalMove:
		cell, err := intArg(env)
		if err != nil {
			return nil, err
		}
		return e.withGame(func(g *Game) any { return g.IsLegal(cell) }), nil
	case reversidto.OpPut:
		cell, err := intArg(env)
		if err != nil {
			return nil, err
		}
		return nil, e.Put(cell)
	case reversidto.OpAIPut:
		level, err := intArg(env)
		if err != nil {
			return nil, err
		}
		return nil, e.AIPut(level)
	case reversidto.OpPass:
		e.withGame(func(g *Game) any { g.Pass(); return nil })
		return nil, nil
	case reversidto.OpIsPass:
		return e.withGame(func(g *Game) any { return g.IsPass() }), nil
	case reversidto.OpIsEnd:
		return e.withGame(func(g *Game) any { return g.IsEnd() }), nil
	case reversidto.OpUndo:
		return e.withGame(func(g *Game) any { return g.Undo() == nil }), nil
	case reversidto.OpRedo:
		return e.withGame(func(g *Game) any { return g.Redo() == nil }), nil
	case reversidto.OpGetRecord:
		return e.withGame(func(g *Game) any { return g.Record() }), nil
	case reversidto.OpNewGame:
		e.withGame(func(*Game) any { e.game = NewGame(); return nil })
		return nil, nil
	case reversidto.OpSetHumanOpening:
		id, err := intArg(env)
		if err != nil {
			return nil, err
		}
		return nil, e.SetHumanOpening(id)
	default:
		return nil, fmt.Errorf("unknown operation %q", env.Op)
	}
}

func intArg(env reversidto.Envelope) (int, error) {
	var v int
	err := env.Arg(0, &v)
	return v, err
}

func (e *Engine) withGame(fn func(*Game) any) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.game)
}

// State snapshots the current position; depth, when set, adds per-move evaluations.
func (e *Engine) State(depth *int) reversidto.BoardStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	black, white := g.Stones()
	st := reversidto.BoardStatus{
		Black:          BitString(black),
		White:          BitString(white),
		LegalMoves:     BitString(g.Board().Moves()),
		NextTurn:       g.Turn(),
		CurrentOpening: e.book.Name(g.Moves()),
	}
	if m, ok := g.LastMove(); ok {
		st.LastMove = &m
	}
	if e.humanOpening >= 0 {
		if next, ok := e.book.Next(e.humanOpening, g.Moves()); ok && g.IsLegal(next) {
			st.HumanOpeningNextMove = &next
		}
	}
	if depth != nil {
		lim := LimitsForLevel(*depth, e.maxDepth)
		scores := MoveScores(g.Board(), lim)
		st.Eval = scores[:]
	}
	return st
}

func (e *Engine) Put(cell int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.Put(cell)
}

// AIPut plays a move for the side to move: a random first move on the empty board,
// the selected human opening while the game follows it, otherwise a search at level.
func (e *Engine) AIPut(level int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	if g.Board().Moves() == 0 {
		return ErrNoMove
	}
	if g.IsInitial() {
		cell := firstMoves[e.rand.Intn(len(firstMoves))]
		e.logger.Debug("ai first move", zap.String("move", reversidto.CellName(cell)))
		return g.Put(cell)
	}
	if e.humanOpening >= 0 {
		if next, ok := e.book.Next(e.humanOpening, g.Moves()); ok && g.IsLegal(next) {
			e.logger.Debug("ai human opening move", zap.String("move", reversidto.CellName(next)))
			return g.Put(next)
		}
	}

	start := time.Now()
	res := Search(g.Board(), LimitsForLevel(level, e.maxDepth))
	if res.Move < 0 {
		return ErrNoMove
	}
	e.logger.Debug("ai search",
		zap.Int("level", level),
		zap.String("move", reversidto.CellName(res.Move)),
		zap.Int("score", res.Score),
		zap.Bool("exact", res.Exact),
		zap.Uint64("nodes", res.Nodes),
		zap.Int("empties", g.Board().Empties()),
		zap.Duration("took", time.Since(start)),
	)
	return g.Put(res.Move)
}

// SetHumanOpening selects the book line the AI follows.
func (e *Engine) SetHumanOpening(id int) error {
	if id < 0 || id >= e.book.Len() {
		return fmt.Errorf("%w: %d", ErrUnknownOpening, id)
	}
	e.mu.Lock()
	e.humanOpening = id
	e.mu.Unlock()
	return nil
}

// Openings lists the opening names by id.
func (e *Engine) Openings() []string { return e.book.Names() }
