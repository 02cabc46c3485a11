package reversi

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

// passMove marks a state reached by passing; noMove marks the initial state.
const (
	passMove = 64
	noMove   = -1
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrNothingToUndo = errors.New("no previous state to undo")
	ErrNothingToRedo = errors.New("no next state to redo")
)

type state struct {
	board Board
	turn  reversidto.Side
	// move that produced this state
	move int
}

// Game is a position plus its undo/redo history. It is not safe for concurrent use.
type Game struct {
	current state
	undo    []state
	redo    []state
}

func NewGame() *Game {
	return &Game{current: state{board: InitialBoard(), turn: reversidto.Black, move: noMove}}
}

func (g *Game) Board() Board { return g.current.board }

func (g *Game) Turn() reversidto.Side { return g.current.turn }

// IsInitial reports whether the current position is the starting position.
func (g *Game) IsInitial() bool {
	return g.current.turn == reversidto.Black && g.current.board == InitialBoard()
}

// Stones returns the black and white bitboards.
func (g *Game) Stones() (black, white uint64) {
	b := g.current.board
	if g.current.turn == reversidto.Black {
		return b.Player, b.Opponent
	}
	return b.Opponent, b.Player
}

func (g *Game) IsLegal(cell int) bool {
	if cell < 0 || cell >= reversidto.BoardCells {
		return false
	}
	return g.current.board.Moves()&cellBit(cell) != 0
}

// Put plays cell for the side to move.
func (g *Game) Put(cell int) error {
	if !g.IsLegal(cell) {
		return fmt.Errorf("%w: %s", ErrIllegalMove, reversidto.CellName(cell))
	}
	g.advance(state{
		board: g.current.board.Play(cellBit(cell)),
		turn:  g.current.turn.Opponent(),
		move:  cell,
	})
	return nil
}

// Pass hands the turn over; it does nothing unless the position is a pass.
func (g *Game) Pass() {
	if !g.IsPass() {
		return
	}
	g.advance(state{
		board: g.current.board.Swap(),
		turn:  g.current.turn.Opponent(),
		move:  passMove,
	})
}

func (g *Game) advance(next state) {
	g.undo = append(g.undo, g.current)
	g.redo = g.redo[:0]
	g.current = next
}

func (g *Game) IsPass() bool { return g.current.board.IsPass() }

func (g *Game) IsEnd() bool { return g.current.board.IsEnd() }

func (g *Game) Undo() error {
	if len(g.undo) == 0 {
		return ErrNothingToUndo
	}
	g.redo = append(g.redo, g.current)
	g.current = g.undo[len(g.undo)-1]
	g.undo = g.undo[:len(g.undo)-1]
	return nil
}

func (g *Game) Redo() error {
	if len(g.redo) == 0 {
		return ErrNothingToRedo
	}
	g.undo = append(g.undo, g.current)
	g.current = g.redo[len(g.redo)-1]
	g.redo = g.redo[:len(g.redo)-1]
	return nil
}

// LastMove is the cell that produced the current position, if it was a move.
func (g *Game) LastMove() (int, bool) {
	m := g.current.move
	if m == noMove || m == passMove {
		return 0, false
	}
	return m, true
}

// Moves lists the played cells from the start, passes excluded.
func (g *Game) Moves() []int {
	out := make([]int, 0, len(g.undo)+1)
	for _, s := range g.undo {
		if s.move != noMove && s.move != passMove {
			out = append(out, s.move)
		}
	}
	if m, ok := g.LastMove(); ok {
		out = append(out, m)
	}
	return out
}

// Record is the move list as upper-case coordinates, e.g. "F5D6C3".
func (g *Game) Record() string {
	var sb strings.Builder
	for _, m := range g.Moves() {
		sb.WriteString(strings.ToUpper(reversidto.CellName(m)))
	}
	return sb.String()
}

// DiscDiff is black minus white.
func (g *Game) DiscDiff() int {
	black, white := g.Stones()
	return bits.OnesCount64(black) - bits.OnesCount64(white)
}
