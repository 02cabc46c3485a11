package render

import (
	"github.com/park285/deft-reversi-go/internal/game"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// Multi forwards every paint callback to each renderer in order. Renderers that also
// implement game.BusyObserver receive SetBusy.
type Multi struct {
	renderers []game.Renderer
}

func NewMulti(renderers ...game.Renderer) *Multi {
	out := make([]game.Renderer, 0, len(renderers))
	for _, r := range renderers {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Multi{renderers: out}
}

func (m *Multi) Render(st *reversidto.BoardStatus, blackName, whiteName string) {
	for _, r := range m.renderers {
		r.Render(st, blackName, whiteName)
	}
}

func (m *Multi) DrawPassMessage() {
	for _, r := range m.renderers {
		r.DrawPassMessage()
	}
}

func (m *Multi) ShowEndGameModal(blackScore, whiteScore int, blackName, whiteName, record string) {
	for _, r := range m.renderers {
		r.ShowEndGameModal(blackScore, whiteScore, blackName, whiteName, record)
	}
}

func (m *Multi) Notify(err error) {
	for _, r := range m.renderers {
		r.Notify(err)
	}
}

func (m *Multi) SetBusy(busy bool) {
	for _, r := range m.renderers {
		if o, ok := r.(game.BusyObserver); ok {
			o.SetBusy(busy)
		}
	}
}

var (
	_ game.Renderer     = (*Multi)(nil)
	_ game.BusyObserver = (*Multi)(nil)
	_ game.Renderer     = (*Terminal)(nil)
	_ game.BusyObserver = (*Terminal)(nil)
	_ game.Renderer     = (*Snapshot)(nil)
)
