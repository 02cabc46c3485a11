// Package events carries UI intents to the orchestrator. Every event kind is its own
// type; subscribers switch on the concrete type.
package events

import (
	"sync"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Event is the closed set of UI intents.
type Event interface {
	// Name is the event tag used in logs.
	Name() string
	isEvent()
}

type (
	BoardClick struct{ Cell int }

	NewGameClick struct{}

	// DoOverClick asks for an undo.
	DoOverClick struct{}

	RedoClick struct{}

	SwitchShowEvalClick struct{}

	DeepHintClick struct{ Depth int }

	SetEnableAI struct{ Enabled bool }

	SetAILevel struct{ Level int }

	SetAITurn struct{ Side reversidto.Side }

	SetPlayerName struct{ Black, White string }

	// SetHumanOpening carries either "none" or a numeric opening id.
	SetHumanOpening struct{ Value string }
)

func (BoardClick) Name() string          { return "boardClick" }
func (NewGameClick) Name() string        { return "newGameClick" }
func (DoOverClick) Name() string         { return "doOverClick" }
func (RedoClick) Name() string           { return "redoClick" }
func (SwitchShowEvalClick) Name() string { return "switchShowEvalClick" }
func (DeepHintClick) Name() string       { return "deepHintClick" }
func (SetEnableAI) Name() string         { return "setEnableAI" }
func (SetAILevel) Name() string          { return "setAILevel" }
func (SetAITurn) Name() string           { return "setAITurn" }
func (SetPlayerName) Name() string       { return "setPlayerName" }
func (SetHumanOpening) Name() string     { return "setHumanOpening" }

func (BoardClick) isEvent()          {}
func (NewGameClick) isEvent()        {}
func (DoOverClick) isEvent()         {}
func (RedoClick) isEvent()           {}
func (SwitchShowEvalClick) isEvent() {}
func (DeepHintClick) isEvent()       {}
func (SetEnableAI) isEvent()         {}
func (SetAILevel) isEvent()          {}
func (SetAITurn) isEvent()           {}
func (SetPlayerName) isEvent()       {}
func (SetHumanOpening) isEvent()     {}

// Handler receives published events. It runs on the publisher's goroutine and
// should not block.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus is a synchronous fan-out of events to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn and returns an id for Unsubscribe.
func (b *Bus) Subscribe(fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, fn: fn})
	return b.nextID
}

func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every subscriber in subscription order.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.fn != nil {
			s.fn(ev)
		}
	}
}
