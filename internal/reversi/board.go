package reversi

import (
	"math/bits"
	"strings"
)

// Bit i of a bitboard is cell i (row*8+col); a1 is bit 0, h8 is bit 63.
const (
	notFileA uint64 = 0xfefefefefefefefe
	notFileH uint64 = 0x7f7f7f7f7f7f7f7f
)

var shifts = [8]func(uint64) uint64{
	func(x uint64) uint64 { return (x << 1) & notFileA }, // east
	func(x uint64) uint64 { return (x >> 1) & notFileH }, // west
	func(x uint64) uint64 { return x << 8 },              // south
	func(x uint64) uint64 { return x >> 8 },              // north
	func(x uint64) uint64 { return (x << 9) & notFileA }, // south-east
	func(x uint64) uint64 { return (x << 7) & notFileH }, // south-west
	func(x uint64) uint64 { return (x >> 7) & notFileA }, // north-east
	func(x uint64) uint64 { return (x >> 9) & notFileH }, // north-west
}

// Board is a position from the point of view of the side to move.
type Board struct {
	Player   uint64
	Opponent uint64
}

// InitialBoard is the standard opening position with black to move.
func InitialBoard() Board {
	return Board{
		Player:   cellBit(28) | cellBit(35), // e4 d5
		Opponent: cellBit(27) | cellBit(36), // d4 e5
	}
}

func cellBit(cell int) uint64 { return 1 << uint(cell) }

// Moves returns the legal moves of the side to move.
func (b Board) Moves() uint64 {
	return legalMoves(b.Player, b.Opponent)
}

// OpponentMoves returns the legal moves of the side not to move.
func (b Board) OpponentMoves() uint64 {
	return legalMoves(b.Opponent, b.Player)
}

func legalMoves(p, o uint64) uint64 {
	empty := ^(p | o)
	var moves uint64
	for _, shift := range shifts {
		t := shift(p) & o
		for i := 0; i < 5; i++ {
			t |= shift(t) & o
		}
		moves |= shift(t) & empty
	}
	return moves
}

// Flips returns the opponent stones turned by playing move (a single bit).
func (b Board) Flips(move uint64) uint64 {
	var flipped uint64
	for _, shift := range shifts {
		var line uint64
		x := shift(move)
		for x != 0 && x&b.Opponent != 0 {
			line |= x
			x = shift(x)
		}
		if x&b.Player != 0 {
			flipped |= line
		}
	}
	return flipped
}

// Play applies move and returns the board from the opponent's point of view.
func (b Board) Play(move uint64) Board {
	f := b.Flips(move)
	return Board{
		Player:   b.Opponent &^ f,
		Opponent: b.Player | move | f,
	}
}

// Swap hands the move to the other side without placing a stone.
func (b Board) Swap() Board {
	return Board{Player: b.Opponent, Opponent: b.Player}
}

// Empties is the number of empty cells.
func (b Board) Empties() int {
	return 64 - bits.OnesCount64(b.Player|b.Opponent)
}

// IsPass reports that the side to move has no move while the other side has one.
func (b Board) IsPass() bool {
	return b.Moves() == 0 && b.OpponentMoves() != 0
}

// IsEnd reports that neither side can move.
func (b Board) IsEnd() bool {
	return b.Moves() == 0 && b.OpponentMoves() == 0
}

// BitString renders a bitboard with character i describing cell i.
func BitString(x uint64) string {
	var sb strings.Builder
	sb.Grow(64)
	for i := 0; i < 64; i++ {
		if x&cellBit(i) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// cells iterates the set bits of x in ascending order.
func cells(x uint64) []int {
	out := make([]int, 0, bits.OnesCount64(x))
	for x != 0 {
		out = append(out, bits.TrailingZeros64(x))
		x &= x - 1
	}
	return out
}
