// Package render implements the game's paint callbacks: a coloured terminal board, a
// PNG snapshot file and a fan-out over several renderers.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/park285/deft-reversi-go/internal/msgcat"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const spinCharset = 14

// Terminal draws the board as text.
type Terminal struct {
	out io.Writer
	cat *msgcat.Catalog

	mu   sync.Mutex
	spin *spinner.Spinner
	last *reversidto.BoardStatus

	black, white, legal, last1 *color.Color
	plus, minus, dim, alert    *color.Color
}

type TerminalOption func(*Terminal)

// WithColor forces colour on or off; by default it follows the terminal.
func WithColor(enabled bool) TerminalOption {
	return func(t *Terminal) {
		for _, c := range t.palette() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithSpinner shows a spinner on f while the engine is thinking.
func WithSpinner(f *os.File) TerminalOption {
	return func(t *Terminal) {
		t.spin = spinner.New(spinner.CharSets[spinCharset], 100*time.Millisecond,
			spinner.WithWriterFile(f),
			spinner.WithSuffix(t.cat.Text("status.thinking", nil)),
		)
	}
}

func NewTerminal(out io.Writer, cat *msgcat.Catalog, opts ...TerminalOption) *Terminal {
	if cat == nil {
		cat = msgcat.Default()
	}
	t := &Terminal{
		out:   out,
		cat:   cat,
		black: color.New(color.FgHiWhite, color.BgBlack, color.Bold),
		white: color.New(color.FgBlack, color.BgHiWhite, color.Bold),
		legal: color.New(color.FgYellow),
		last1: color.New(color.FgHiRed, color.Bold),
		plus:  color.New(color.FgGreen),
		minus: color.New(color.FgRed),
		dim:   color.New(color.FgHiBlack),
		alert: color.New(color.FgHiRed, color.Bold),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Terminal) palette() []*color.Color {
	return []*color.Color{t.black, t.white, t.legal, t.last1, t.plus, t.minus, t.dim, t.alert}
}

// Render prints the board, the score line and the side to move. Cells show the
// evaluation when the status carries one.
func (t *Terminal) Render(st *reversidto.BoardStatus, blackName, whiteName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseSpinner(func() {
		if st == nil {
			t.last = nil
			fmt.Fprintln(t.out, t.dim.Sprint(t.cat.Text("board.blank", nil)))
			return
		}
		t.last = st
		fmt.Fprint(t.out, t.board(st))
		fmt.Fprintln(t.out, t.statusLine(st, blackName, whiteName))
	})
}

func (t *Terminal) board(st *reversidto.BoardStatus) string {
	eval := len(st.Eval) == reversidto.BoardCells
	width := 2
	if eval {
		width = 4
	}
	var b strings.Builder
	b.WriteString("  ")
	for col := 0; col < 8; col++ {
		fmt.Fprintf(&b, "%*c", width, 'a'+col)
	}
	b.WriteByte('\n')
	for row := 0; row < 8; row++ {
		fmt.Fprintf(&b, "%d ", row+1)
		for col := 0; col < 8; col++ {
			text, n := t.cell(st, row*8+col, eval)
			b.WriteString(strings.Repeat(" ", max(width-n, 1)))
			b.WriteString(text)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// cell returns the coloured glyph for cell and its printed width.
func (t *Terminal) cell(st *reversidto.BoardStatus, cell int, eval bool) (string, int) {
	if side, ok := st.CellSide(cell); ok {
		c, glyph := t.black, "●"
		if side == reversidto.White {
			c, glyph = t.white, "○"
		}
		if st.LastMove != nil && *st.LastMove == cell {
			c = t.last1
		}
		return c.Sprint(glyph), 1
	}
	if !st.IsLegal(cell) {
		return t.dim.Sprint("·"), 1
	}
	if eval {
		v, _ := st.EvalAt(cell)
		text := fmt.Sprintf("%+d", v)
		switch {
		case v > 0:
			return t.plus.Sprint(text), len(text)
		case v < 0:
			return t.minus.Sprint(text), len(text)
		default:
			return t.legal.Sprint("0"), 1
		}
	}
	if st.HumanOpeningNextMove != nil && *st.HumanOpeningNextMove == cell {
		return t.legal.Sprint("◆"), 1
	}
	return t.legal.Sprint("*"), 1
}

func (t *Terminal) statusLine(st *reversidto.BoardStatus, blackName, whiteName string) string {
	parts := []string{
		t.cat.Text("board.score", map[string]any{"Black": st.BlackCount(), "White": st.WhiteCount()}),
	}
	name := blackName
	if st.NextTurn == reversidto.White {
		name = whiteName
	}
	parts = append(parts, t.cat.Text("board.turn", map[string]any{"Name": name, "Side": st.NextTurn}))
	if st.LastMove != nil {
		parts = append(parts, t.cat.Text("board.last_move", map[string]any{"Cell": reversidto.CellName(*st.LastMove)}))
	}
	if st.CurrentOpening != "" {
		parts = append(parts, t.cat.Text("board.opening", map[string]any{"Name": st.CurrentOpening}))
	}
	return strings.Join(parts, " | ")
}

func (t *Terminal) DrawPassMessage() {
	t.mu.Lock()
	defer t.mu.Unlock()
	side := reversidto.Side("")
	if t.last != nil {
		side = t.last.NextTurn
	}
	t.pauseSpinner(func() {
		fmt.Fprintln(t.out, t.legal.Sprint(t.cat.Text("game.pass", map[string]any{"Side": side})))
	})
}

func (t *Terminal) ShowEndGameModal(blackScore, whiteScore int, blackName, whiteName, record string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseSpinner(func() {
		fmt.Fprintln(t.out, t.cat.Text("game.over", map[string]any{
			"BlackName": blackName, "Black": blackScore, "White": whiteScore, "WhiteName": whiteName,
		}))
		switch {
		case blackScore > whiteScore:
			fmt.Fprintln(t.out, t.cat.Text("game.winner", map[string]any{"Name": blackName, "Margin": blackScore - whiteScore}))
		case whiteScore > blackScore:
			fmt.Fprintln(t.out, t.cat.Text("game.winner", map[string]any{"Name": whiteName, "Margin": whiteScore - blackScore}))
		default:
			fmt.Fprintln(t.out, t.cat.Text("game.draw", nil))
		}
		fmt.Fprintln(t.out, t.cat.Text("game.record", map[string]any{"Record": record}))
	})
}

func (t *Terminal) Notify(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseSpinner(func() {
		fmt.Fprintln(t.out, t.alert.Sprint(t.cat.Text("status.error", map[string]any{"Err": err.Error()})))
	})
}

// SetBusy starts or stops the spinner.
func (t *Terminal) SetBusy(busy bool) {
	if t.spin == nil {
		return
	}
	if busy {
		t.spin.Start()
	} else {
		t.spin.Stop()
	}
}

// Print writes a free-form line, used for prompts and command output.
func (t *Terminal) Print(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pauseSpinner(func() { fmt.Fprintf(t.out, format, args...) })
}

func (t *Terminal) pauseSpinner(fn func()) {
	if t.spin == nil || !t.spin.Active() {
		fn()
		return
	}
	t.spin.Stop()
	defer t.spin.Start()
	fn()
}
