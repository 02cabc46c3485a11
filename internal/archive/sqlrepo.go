package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	driver string
	schema string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		driver: "postgres",
		schema: `
		CREATE TABLE IF NOT EXISTS reversi_games (
			id          TEXT PRIMARY KEY,
			black_name  TEXT NOT NULL,
			white_name  TEXT NOT NULL,
			black_score INTEGER NOT NULL,
			white_score INTEGER NOT NULL,
			winner      TEXT NOT NULL,
			record      TEXT NOT NULL,
			ai_enabled  BOOLEAN NOT NULL,
			ai_level    INTEGER NOT NULL,
			ai_side     TEXT NOT NULL,
			finished_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS reversi_games_finished_at ON reversi_games (finished_at DESC)`,
	},
	DriverSQLite: {
		driver: "sqlite",
		schema: `
		CREATE TABLE IF NOT EXISTS reversi_games (
			id          TEXT PRIMARY KEY,
			black_name  TEXT NOT NULL,
			white_name  TEXT NOT NULL,
			black_score INTEGER NOT NULL,
			white_score INTEGER NOT NULL,
			winner      TEXT NOT NULL,
			record      TEXT NOT NULL,
			ai_enabled  INTEGER NOT NULL,
			ai_level    INTEGER NOT NULL,
			ai_side     TEXT NOT NULL,
			finished_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS reversi_games_finished_at ON reversi_games (finished_at DESC)`,
	},
}

type repository struct {
	db *sql.DB
}

// Open connects to dsn with the named driver and creates the table if needed.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Repository, error) {
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported archive driver %q", driver)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.driver == DriverSQLite {
		// one writer; also keeps ":memory:" a single database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	if err := migrate(ctx, db, d); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, NewRepository(db), nil
}

func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	for _, stmt := range strings.Split(d.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
	}
	return nil
}

// NewRepository expects the reversi_games table to exist. Queries use $n
// placeholders, which both drivers accept.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertGame(ctx context.Context, g *Game) error {
	if g == nil || g.ID == "" {
		return errInvalidGame
	}
	const query = `
		INSERT INTO reversi_games (
			id,
			black_name,
			white_name,
			black_score,
			white_score,
			winner,
			record,
			ai_enabled,
			ai_level,
			ai_side,
			finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	res, err := r.db.ExecContext(
		ctx,
		query,
		g.ID,
		g.BlackName,
		g.WhiteName,
		g.BlackScore,
		g.WhiteScore,
		g.Winner,
		g.Record,
		g.AIEnabled,
		g.AILevel,
		g.AISide,
		g.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert reversi game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert reversi game: %w", err)
	}
	if n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

const selectColumns = `
		SELECT
			id,
			black_name,
			white_name,
			black_score,
			white_score,
			winner,
			record,
			ai_enabled,
			ai_level,
			ai_side,
			finished_at
		FROM reversi_games`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		g          Game
		finishedMS int64
	)
	if err := row.Scan(
		&g.ID,
		&g.BlackName,
		&g.WhiteName,
		&g.BlackScore,
		&g.WhiteScore,
		&g.Winner,
		&g.Record,
		&g.AIEnabled,
		&g.AILevel,
		&g.AISide,
		&finishedMS,
	); err != nil {
		return nil, err
	}
	g.FinishedAt = time.UnixMilli(finishedMS).UTC()
	return &g, nil
}

func (r *repository) GetGame(ctx context.Context, id string) (*Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, selectColumns+`
		WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select reversi game: %w", err)
	}
	return g, nil
}

func (r *repository) RecentGames(ctx context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		ORDER BY finished_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select reversi games: %w", err)
	}
	defer rows.Close()

	games := make([]*Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reversi game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reversi games: %w", err)
	}
	return games, nil
}
