// Package archive stores finished games: a SQL table as the system of record and a
// capped Redis list for the most recent results.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/internal/game"
)

var (
	ErrNotFound      = errors.New("archived game not found")
	ErrDuplicateGame = errors.New("archived game already exists")

	errInvalidGame = errors.New("game payload has no id")
)

const defaultRecentLimit = 10

// Game is one archived result.
type Game struct {
	ID         string    `json:"id"`
	BlackName  string    `json:"blackName"`
	WhiteName  string    `json:"whiteName"`
	BlackScore int       `json:"blackScore"`
	WhiteScore int       `json:"whiteScore"`
	Winner     string    `json:"winner,omitempty"`
	Record     string    `json:"record"`
	AIEnabled  bool      `json:"aiEnabled"`
	AILevel    int       `json:"aiLevel"`
	AISide     string    `json:"aiSide"`
	FinishedAt time.Time `json:"finishedAt"`
}

// FromResult assigns a fresh time-ordered id to res.
func FromResult(res game.Result) (*Game, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate game id: %w", err)
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return &Game{
		ID:         id.String(),
		BlackName:  res.BlackName,
		WhiteName:  res.WhiteName,
		BlackScore: res.BlackScore,
		WhiteScore: res.WhiteScore,
		Winner:     string(res.Winner()),
		Record:     res.Record,
		AIEnabled:  res.AIEnabled,
		AILevel:    res.AILevel,
		AISide:     string(res.AISide),
		FinishedAt: finished.UTC().Truncate(time.Millisecond),
	}, nil
}

type Repository interface {
	InsertGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, id string) (*Game, error)
	// RecentGames returns the latest games first.
	RecentGames(ctx context.Context, limit int) ([]*Game, error)
}

// Archive writes every game to the repository and mirrors it into the recent list
// when one is configured. Recent-list failures are logged and never fail a save.
type Archive struct {
	repo   Repository
	recent *RecentList
	logger *zap.Logger
}

type Option func(*Archive)

func WithRecentList(l *RecentList) Option {
	return func(a *Archive) { a.recent = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(repo Repository, opts ...Option) *Archive {
	a := &Archive{repo: repo, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Save stores res and returns the archived row.
func (a *Archive) Save(ctx context.Context, res game.Result) (*Game, error) {
	g, err := FromResult(res)
	if err != nil {
		return nil, err
	}
	if err := a.repo.InsertGame(ctx, g); err != nil {
		return nil, err
	}
	if a.recent != nil {
		if err := a.recent.Push(ctx, g); err != nil {
			a.logger.Warn("recent list push failed", zap.String("id", g.ID), zap.Error(err))
		}
	}
	return g, nil
}

// Recent prefers the Redis list and falls back to the repository.
func (a *Archive) Recent(ctx context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if a.recent != nil {
		games, err := a.recent.Recent(ctx, limit)
		if err == nil && len(games) > 0 {
			return games, nil
		}
		if err != nil {
			a.logger.Warn("recent list read failed", zap.Error(err))
		}
	}
	return a.repo.RecentGames(ctx, limit)
}

func (a *Archive) Get(ctx context.Context, id string) (*Game, error) {
	return a.repo.GetGame(ctx, id)
}

// OnEnd adapts Save to game.Config.OnEnd.
func (a *Archive) OnEnd(ctx context.Context, res game.Result) {
	g, err := a.Save(ctx, res)
	if err != nil {
		a.logger.Error("archive game failed", zap.Error(err))
		return
	}
	a.logger.Info("game archived",
		zap.String("id", g.ID),
		zap.Int("black", g.BlackScore),
		zap.Int("white", g.WhiteScore),
	)
}
