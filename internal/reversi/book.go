package reversi

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

//go:embed openings.yaml
var defaultBookData []byte

var (
	defaultBookOnce sync.Once
	defaultBook     *Book
	defaultBookErr  error
)

// Opening is a named line of play.
type Opening struct {
	Name  string `yaml:"name"`
	Moves string `yaml:"moves"`

	cells []int
}

// Book holds the named human openings the AI can be asked to follow.
type Book struct {
	openings []Opening
}

// DefaultBook returns the embedded book.
func DefaultBook() (*Book, error) {
	defaultBookOnce.Do(func() {
		defaultBook, defaultBookErr = LoadBook(defaultBookData)
	})
	return defaultBook, defaultBookErr
}

// LoadBook parses YAML and checks every line is playable from the initial position.
func LoadBook(data []byte) (*Book, error) {
	var raw struct {
		Openings []Opening `yaml:"openings"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse opening book: %w", err)
	}
	b := &Book{openings: make([]Opening, 0, len(raw.Openings))}
	for _, o := range raw.Openings {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			return nil, fmt.Errorf("opening book: entry without name")
		}
		g := NewGame()
		for _, tok := range strings.Fields(o.Moves) {
			cell, err := reversidto.ParseCell(tok)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", name, err)
			}
			if err := g.Put(cell); err != nil {
				return nil, fmt.Errorf("opening %s: %w", name, err)
			}
			o.cells = append(o.cells, cell)
		}
		if len(o.cells) == 0 {
			return nil, fmt.Errorf("opening %s: no moves", name)
		}
		o.Name = name
		b.openings = append(b.openings, o)
	}
	return b, nil
}

// Names lists the openings in book order; the index is the opening id.
func (b *Book) Names() []string {
	out := make([]string, len(b.openings))
	for i, o := range b.openings {
		out[i] = o.Name
	}
	return out
}

// Len is the number of openings.
func (b *Book) Len() int { return len(b.openings) }

// Next returns the move continuing opening id after the played moves.
func (b *Book) Next(id int, played []int) (int, bool) {
	if id < 0 || id >= len(b.openings) {
		return 0, false
	}
	if len(played) == 0 {
		return b.openings[id].cells[0], true
	}
	sym := symmetryFor(played[0])
	line := b.openings[id].cells
	if len(played) >= len(line) {
		return 0, false
	}
	for i, m := range played {
		if sym(m) != line[i] {
			return 0, false
		}
	}
	return sym(line[len(played)]), true
}

// Name returns the longest opening whose whole line starts the played moves.
func (b *Book) Name(played []int) string {
	if len(played) == 0 {
		return ""
	}
	sym := symmetryFor(played[0])
	best, bestLen := "", 0
	for _, o := range b.openings {
		if len(o.cells) > len(played) || len(o.cells) <= bestLen {
			continue
		}
		match := true
		for i, c := range o.cells {
			if sym(played[i]) != c {
				match = false
				break
			}
		}
		if match {
			best, bestLen = o.Name, len(o.cells)
		}
	}
	return best
}

// symmetryFor returns the board symmetry taking first onto f5. Each is its own inverse.
func symmetryFor(first int) func(int) int {
	switch first {
	case 44: // e6
		return func(c int) int { return (c%8)*8 + c/8 }
	case 26: // c4
		return func(c int) int { return 63 - c }
	case 19: // d3
		return func(c int) int { return (7-c%8)*8 + (7 - c/8) }
	default:
		return func(c int) int { return c }
	}
}
