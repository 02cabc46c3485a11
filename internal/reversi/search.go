package reversi

import (
	"math/bits"
	"sort"
)

const infinity = 1 << 20

// cellWeights is a classic positional table, corners high and X/C squares low.
var cellWeights = [64]int{
	100, -20, 10, 5, 5, 10, -20, 100,
	-20, -50, -2, -2, -2, -2, -50, -20,
	10, -2, -1, -1, -1, -1, -2, 10,
	5, -2, -1, -1, -1, -1, -2, 5,
	5, -2, -1, -1, -1, -1, -2, 5,
	10, -2, -1, -1, -1, -1, -2, 10,
	-20, -50, -2, -2, -2, -2, -50, -20,
	100, -20, 10, 5, 5, 10, -20, 100,
}

// Limits bounds one search.
type Limits struct {
	Depth int
	// ExactEmpties switches to a full-depth solve at or below this many empties.
	ExactEmpties int
}

// LimitsForLevel maps an AI level to search limits. maxDepth caps the midgame depth.
func LimitsForLevel(level, maxDepth int) Limits {
	if maxDepth < 1 {
		maxDepth = 1
	}
	depth := level
	if depth < 1 {
		depth = 1
	}
	if depth > maxDepth {
		depth = maxDepth
	}
	exact := depth + 2
	if exact > 12 {
		exact = 12
	}
	return Limits{Depth: depth, ExactEmpties: exact}
}

// Result of a root search. Score is from the side to move's point of view.
type Result struct {
	Move  int
	Score int
	Exact bool
	Nodes uint64
}

type searcher struct {
	nodes uint64
}

// Search picks the best move for the side to move. Move is -1 when there is none.
func Search(b Board, lim Limits) Result {
	moves := b.Moves()
	if moves == 0 {
		return Result{Move: -1}
	}
	s := &searcher{}
	depth, exact := s.depthFor(b, lim)

	res := Result{Move: -1, Score: -infinity, Exact: exact}
	alpha := -infinity
	for _, cell := range orderedMoves(moves) {
		v := -s.negamax(b.Play(cellBit(cell)), depth-1, -infinity, -alpha)
		if v > res.Score {
			res.Score, res.Move = v, cell
		}
		if v > alpha {
			alpha = v
		}
	}
	res.Nodes = s.nodes
	return res
}

// MoveScores evaluates every legal move; other cells are 0.
func MoveScores(b Board, lim Limits) [64]int {
	var scores [64]int
	s := &searcher{}
	depth, _ := s.depthFor(b, lim)
	for _, cell := range cells(b.Moves()) {
		scores[cell] = -s.negamax(b.Play(cellBit(cell)), depth-1, -infinity, infinity)
	}
	return scores
}

func (s *searcher) depthFor(b Board, lim Limits) (int, bool) {
	if e := b.Empties(); e <= lim.ExactEmpties {
		return e, true
	}
	if lim.Depth < 1 {
		return 1, false
	}
	return lim.Depth, false
}

func (s *searcher) negamax(b Board, depth, alpha, beta int) int {
	s.nodes++
	moves := b.Moves()
	if moves == 0 {
		if b.OpponentMoves() == 0 {
			return finalScore(b)
		}
		// a pass does not consume depth
		return -s.negamax(b.Swap(), depth, -beta, -alpha)
	}
	if depth <= 0 {
		return evaluate(b)
	}
	best := -infinity
	for _, cell := range orderedMoves(moves) {
		v := -s.negamax(b.Play(cellBit(cell)), depth-1, -beta, -alpha)
		if v > best {
			best = v
		}
		if v > alpha {
			alpha = v
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// finalScore is the disc difference with empties awarded to the winner.
func finalScore(b Board) int {
	p := bits.OnesCount64(b.Player)
	o := bits.OnesCount64(b.Opponent)
	e := 64 - p - o
	switch {
	case p > o:
		return p - o + e
	case p < o:
		return p - o - e
	default:
		return 0
	}
}

// evaluate scores a midgame position roughly on the disc-difference scale.
func evaluate(b Board) int {
	pos := 0
	for _, c := range cells(b.Player) {
		pos += cellWeights[c]
	}
	for _, c := range cells(b.Opponent) {
		pos -= cellWeights[c]
	}
	mobility := bits.OnesCount64(b.Moves()) - bits.OnesCount64(b.OpponentMoves())
	return (pos + 4*mobility) / 8
}

func orderedMoves(moves uint64) []int {
	list := cells(moves)
	sort.SliceStable(list, func(i, j int) bool {
		return cellWeights[list[i]] > cellWeights[list[j]]
	})
	return list
}
