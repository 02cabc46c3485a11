package reversidto

import (
	"fmt"
	"strings"
)

// BoardCells is the number of cells on the board.
const BoardCells = 64

// Side identifies a player colour.
type Side string

const (
	Black Side = "black"
	White Side = "white"
)

// ParseSide accepts "black"/"white" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Black):
		return Black, nil
	case string(White):
		return White, nil
	default:
		return "", fmt.Errorf("invalid side %q", s)
	}
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == Black {
		return White
	}
	return Black
}

// BoardStatus is an immutable snapshot returned by getState. Bit-strings hold one
// character per cell; character i describes cell i (row*8+col), '1' meaning set.
type BoardStatus struct {
	Black      string `json:"black"`
	White      string `json:"white"`
	LegalMoves string `json:"legalMoves"`
	NextTurn   Side   `json:"nextTurn"`

	// Eval holds one score per cell (0 for non-legal cells) and is present only when a
	// search depth was requested.
	Eval []int `json:"eval,omitempty"`

	LastMove             *int   `json:"lastMove,omitempty"`
	HumanOpeningNextMove *int   `json:"humanOpeningNextMove,omitempty"`
	CurrentOpening       string `json:"currentOpening,omitempty"`
}

// CountBits counts '1' characters of a bit-string.
func CountBits(bits string) int {
	return strings.Count(bits, "1")
}

// BlackCount is the number of black stones.
func (b *BoardStatus) BlackCount() int { return CountBits(b.Black) }

// WhiteCount is the number of white stones.
func (b *BoardStatus) WhiteCount() int { return CountBits(b.White) }

// Stones is the total number of stones on the board.
func (b *BoardStatus) Stones() int { return b.BlackCount() + b.WhiteCount() }

// IsLegal reports whether cell is marked in LegalMoves.
func (b *BoardStatus) IsLegal(cell int) bool { return bitAt(b.LegalMoves, cell) }

// CellSide reports the stone at cell, if any.
func (b *BoardStatus) CellSide(cell int) (Side, bool) {
	switch {
	case bitAt(b.Black, cell):
		return Black, true
	case bitAt(b.White, cell):
		return White, true
	default:
		return "", false
	}
}

// EvalAt returns the evaluation of cell when evaluations are present.
func (b *BoardStatus) EvalAt(cell int) (int, bool) {
	if len(b.Eval) != BoardCells || !b.IsLegal(cell) {
		return 0, false
	}
	return b.Eval[cell], true
}

// Validate checks the bit-string shapes.
func (b *BoardStatus) Validate() error {
	for name, bits := range map[string]string{"black": b.Black, "white": b.White, "legalMoves": b.LegalMoves} {
		if len(bits) != BoardCells {
			return fmt.Errorf("%s: want %d cells, got %d", name, BoardCells, len(bits))
		}
		if strings.Trim(bits, "01") != "" {
			return fmt.Errorf("%s: unexpected character", name)
		}
	}
	if b.Eval != nil && len(b.Eval) != BoardCells {
		return fmt.Errorf("eval: want %d entries, got %d", BoardCells, len(b.Eval))
	}
	if b.NextTurn != Black && b.NextTurn != White {
		return fmt.Errorf("nextTurn: invalid side %q", b.NextTurn)
	}
	return nil
}

func bitAt(bits string, cell int) bool {
	return cell >= 0 && cell < len(bits) && bits[cell] == '1'
}

// CellName renders a cell index as a coordinate such as "f5".
func CellName(cell int) string {
	if cell < 0 || cell >= BoardCells {
		return "--"
	}
	return fmt.Sprintf("%c%d", 'a'+cell%8, cell/8+1)
}

// ParseCell accepts a coordinate ("f5", "F5") and returns its cell index.
func ParseCell(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("invalid cell %q", s)
	}
	return int(s[1]-'1')*8 + int(s[0]-'a'), nil
}
