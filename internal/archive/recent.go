package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRecentCap = 50

// RecentList is a capped Redis list of the newest games, newest first.
type RecentList struct {
	rdb redis.UniversalClient
	key string
	cap int
}

func NewRecentList(rdb redis.UniversalClient, key string, capacity int) *RecentList {
	if key == "" {
		key = "reversi:recent"
	}
	if capacity <= 0 {
		capacity = defaultRecentCap
	}
	return &RecentList{rdb: rdb, key: key, cap: capacity}
}

func (l *RecentList) Push(ctx context.Context, g *Game) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	pipe := l.rdb.TxPipeline()
	pipe.LPush(ctx, l.key, payload)
	pipe.LTrim(ctx, l.key, 0, int64(l.cap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent game: %w", err)
	}
	return nil
}

func (l *RecentList) Recent(ctx context.Context, limit int) ([]*Game, error) {
	if limit <= 0 || limit > l.cap {
		limit = l.cap
	}
	raw, err := l.rdb.LRange(ctx, l.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent games: %w", err)
	}
	games := make([]*Game, 0, len(raw))
	for _, item := range raw {
		var g Game
		if err := json.Unmarshal([]byte(item), &g); err != nil {
			return nil, fmt.Errorf("unmarshal recent game: %w", err)
		}
		games = append(games, &g)
	}
	return games, nil
}
