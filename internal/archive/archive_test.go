package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/deft-reversi-go/internal/game"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

func newSQLiteRepo(t *testing.T) Repository {
	t.Helper()
	db, repo, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repo
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func result(i int) game.Result {
	return game.Result{
		BlackScore: 30 + i,
		WhiteScore: 34 - i,
		BlackName:  "You",
		WhiteName:  "AI Lv 10",
		Record:     fmt.Sprintf("F5D6C3-%d", i),
		AIEnabled:  true,
		AILevel:    10,
		AISide:     reversidto.White,
		FinishedAt: baseTime.Add(time.Duration(i) * time.Minute),
	}
}

func TestFromResult(t *testing.T) {
	g, err := FromResult(result(3))
	if err != nil {
		t.Fatalf("FromResult: %v", err)
	}
	if g.ID == "" || g.Winner != "black" || g.AISide != "white" || g.BlackScore != 33 {
		t.Fatalf("unexpected game %+v", g)
	}
	draw, err := FromResult(game.Result{BlackScore: 32, WhiteScore: 32})
	if err != nil {
		t.Fatalf("FromResult: %v", err)
	}
	if draw.Winner != "" || draw.FinishedAt.IsZero() {
		t.Fatalf("draw should have no winner and a timestamp: %+v", draw)
	}
	if draw.ID == g.ID {
		t.Fatalf("ids must be unique")
	}
}

func TestRepositories(t *testing.T) {
	repos := map[string]func(t *testing.T) Repository{
		"memory": func(*testing.T) Repository { return NewMemoryRepository() },
		"sqlite": newSQLiteRepo,
	}
	for name, mk := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := mk(t)

			var ids []string
			for i := 0; i < 4; i++ {
				g, err := FromResult(result(i))
				if err != nil {
					t.Fatalf("FromResult: %v", err)
				}
				if err := repo.InsertGame(ctx, g); err != nil {
					t.Fatalf("insert %d: %v", i, err)
				}
				ids = append(ids, g.ID)
			}

			got, err := repo.GetGame(ctx, ids[1])
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Record != "F5D6C3-1" || !got.AIEnabled || !got.FinishedAt.Equal(baseTime.Add(time.Minute)) {
				t.Fatalf("round trip mismatch: %+v", got)
			}

			if _, err := repo.GetGame(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			dup := *got
			if err := repo.InsertGame(ctx, &dup); !errors.Is(err, ErrDuplicateGame) {
				t.Fatalf("expected ErrDuplicateGame, got %v", err)
			}

			recent, err := repo.RecentGames(ctx, 3)
			if err != nil {
				t.Fatalf("recent: %v", err)
			}
			if len(recent) != 3 {
				t.Fatalf("expected 3 games, got %d", len(recent))
			}
			for i, want := range []string{ids[3], ids[2], ids[1]} {
				if recent[i].ID != want {
					t.Fatalf("recent[%d] = %s, want %s", i, recent[i].ID, want)
				}
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), "oracle", ""); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}

func TestRecentList_Capped(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	list := NewRecentList(rdb, "test:recent", 3)

	for i := 0; i < 5; i++ {
		g, err := FromResult(result(i))
		if err != nil {
			t.Fatalf("FromResult: %v", err)
		}
		if err := list.Push(ctx, g); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if n := rdb.LLen(ctx, "test:recent").Val(); n != 3 {
		t.Fatalf("list length %d, want 3", n)
	}
	games, err := list.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(games) != 3 || games[0].Record != "F5D6C3-4" || games[2].Record != "F5D6C3-2" {
		t.Fatalf("unexpected recent games %+v", games)
	}
}

func TestArchive_SaveAndRecent(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	a := New(newSQLiteRepo(t), WithRecentList(NewRecentList(rdb, "", 0)))

	a.OnEnd(ctx, result(0))
	saved, err := a.Save(ctx, result(1))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	games, err := a.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(games) != 2 || games[0].ID != saved.ID {
		t.Fatalf("unexpected recent games %+v", games)
	}

	got, err := a.Get(ctx, saved.ID)
	if err != nil || got.Record != saved.Record {
		t.Fatalf("get: %+v, %v", got, err)
	}

	// Redis gone: saves still succeed and reads fall back to SQL.
	mr.Close()
	if _, err := a.Save(ctx, result(2)); err != nil {
		t.Fatalf("save without redis: %v", err)
	}
	games, err = a.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent fallback: %v", err)
	}
	if len(games) != 3 || games[0].Record != "F5D6C3-2" {
		t.Fatalf("fallback returned %+v", games)
	}
}
