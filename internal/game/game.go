// Package game sequences human and AI turns against a remote engine session.
//
// One action (click, undo, redo, new game, deep hint) runs at a time behind the busy
// guard; clicks that find it taken are dropped, not queued. Progressive evaluation
// paints are tagged with a render generation and silently discarded once a newer
// action or paint has bumped it.
package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

var (
	ErrBusy           = errors.New("another action is in progress")
	ErrInvalidDepth   = errors.New("hint depth out of range")
	ErrInvalidOpening = errors.New("invalid human opening")
)

const (
	MinHintDepth = 1
	MaxHintDepth = 24

	// maxPlies bounds every pass and AI loop by the number of cells.
	maxPlies = reversidto.BoardCells

	defaultPassDelay     = time.Second
	defaultAIFirstDelay  = 600 * time.Millisecond
	defaultUndoStepDelay = 200 * time.Millisecond
	defaultUndoLimit     = 70
	defaultEvalDepth     = 8
	defaultEvalStep      = 3
	defaultAILevel       = 10
)

// Engine is the remote operation surface the orchestrator drives.
type Engine interface {
	GetState(ctx context.Context, depth *int) (*reversidto.BoardStatus, error)
	IsLegalMove(ctx context.Context, cell int) (bool, error)
	Put(ctx context.Context, cell int) error
	AIPut(ctx context.Context, level int) error
	Pass(ctx context.Context) error
	IsPass(ctx context.Context) (bool, error)
	IsEnd(ctx context.Context) (bool, error)
	Undo(ctx context.Context) (bool, error)
	Redo(ctx context.Context) (bool, error)
	GetRecord(ctx context.Context) (string, error)
	NewGame(ctx context.Context) error
	SetHumanOpening(ctx context.Context, id int) error
}

// Renderer paints what the orchestrator hands it. Calls are serialized and must
// not call back into the Session.
type Renderer interface {
	// Render paints status; a nil status blanks the board.
	Render(status *reversidto.BoardStatus, blackName, whiteName string)
	DrawPassMessage()
	ShowEndGameModal(blackScore, whiteScore int, blackName, whiteName, record string)
	// Notify surfaces a failed engine call to the user.
	Notify(err error)
}

// BusyObserver is implemented by renderers that show a thinking indicator.
type BusyObserver interface {
	SetBusy(busy bool)
}

// Result summarizes a finished game.
type Result struct {
	BlackScore int
	WhiteScore int
	BlackName  string
	WhiteName  string
	Record     string
	AIEnabled  bool
	AILevel    int
	AISide     reversidto.Side
	FinishedAt time.Time
}

// Winner is the side with more stones, or "" for a draw.
func (r Result) Winner() reversidto.Side {
	switch {
	case r.BlackScore > r.WhiteScore:
		return reversidto.Black
	case r.WhiteScore > r.BlackScore:
		return reversidto.White
	default:
		return ""
	}
}

// Settings are the user-adjustable session fields.
type Settings struct {
	AIEnabled    bool
	AILevel      int
	AISide       reversidto.Side
	EvalEnabled  bool
	EvalDepth    int
	EvalStep     int
	HumanOpening string
	// Empty names fall back to DefaultPlayerNames.
	BlackName string
	WhiteName string
}

// Config configures a Session. Zero delays disable waiting; see DefaultConfig for
// the stock values.
type Config struct {
	Settings      Settings
	PassDelay     time.Duration
	AIFirstDelay  time.Duration
	UndoStepDelay time.Duration
	UndoLimit     int

	Logger *zap.Logger
	// OnEnd receives every finished game once.
	OnEnd func(ctx context.Context, res Result)
	// OnSettings receives the settings after each change.
	OnSettings func(Settings)
}

func (c Config) withDefaults() Config {
	if c.UndoLimit <= 0 {
		c.UndoLimit = defaultUndoLimit
	}
	if c.Settings.AILevel <= 0 {
		c.Settings.AILevel = defaultAILevel
	}
	if c.Settings.AISide != reversidto.Black {
		c.Settings.AISide = reversidto.White
	}
	if c.Settings.EvalDepth <= 0 {
		c.Settings.EvalDepth = defaultEvalDepth
	}
	if c.Settings.EvalStep <= 0 {
		c.Settings.EvalStep = defaultEvalStep
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// DefaultConfig carries the stock delays.
func DefaultConfig() Config {
	return Config{
		Settings: Settings{
			AIEnabled: true,
			AILevel:   defaultAILevel,
			AISide:    reversidto.White,
			EvalDepth: defaultEvalDepth,
			EvalStep:  defaultEvalStep,
		},
		PassDelay:     defaultPassDelay,
		AIFirstDelay:  defaultAIFirstDelay,
		UndoStepDelay: defaultUndoStepDelay,
		UndoLimit:     defaultUndoLimit,
	}
}
