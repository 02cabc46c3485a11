package archive

import (
	"context"
	"sort"
	"sync"
)

// memrepo keeps games in process memory; used when no database is configured.
type memrepo struct {
	mu    sync.RWMutex
	byID  map[string]*Game
	order []*Game // insertion order
}

func NewMemoryRepository() Repository {
	return &memrepo{byID: make(map[string]*Game)}
}

func (m *memrepo) InsertGame(ctx context.Context, g *Game) error {
	if g == nil || g.ID == "" {
		return errInvalidGame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[g.ID]; exists {
		return ErrDuplicateGame
	}
	cp := *g
	m.byID[g.ID] = &cp
	m.order = append(m.order, &cp)
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, id string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memrepo) RecentGames(ctx context.Context, limit int) ([]*Game, error) {
	m.mu.RLock()
	items := make([]*Game, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		cp := *m.order[i]
		items = append(items, &cp)
	}
	m.mu.RUnlock()

	// FinishedAt desc, insertion order breaks ties
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FinishedAt.After(items[j].FinishedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
