// Package settings persists the user-adjustable session settings as YAML under the
// XDG config directory.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/park285/deft-reversi-go/internal/game"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const (
	relPath         = "deft-reversi/settings.yaml"
	filePermissions = 0o644
	maxAILevel      = 60
)

var ErrMalformed = errors.New("malformed settings file")

// File is the on-disk shape. Pointer fields distinguish "unset" from a zero value.
type File struct {
	AIEnabled    *bool  `yaml:"ai_enabled,omitempty"`
	AILevel      int    `yaml:"ai_level,omitempty"`
	AISide       string `yaml:"ai_side,omitempty"`
	ShowEval     *bool  `yaml:"show_eval,omitempty"`
	HumanOpening string `yaml:"human_opening,omitempty"`
	BlackName    string `yaml:"black_name,omitempty"`
	WhiteName    string `yaml:"white_name,omitempty"`
}

// DefaultPath resolves the settings file, creating its directory.
func DefaultPath() (string, error) {
	p, err := xdg.ConfigFile(relPath)
	if err != nil {
		return "", fmt.Errorf("resolve settings path: %w", err)
	}
	return p, nil
}

type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore uses DefaultPath when path is empty.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(path) == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path, logger: logger}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the file. A missing file yields an empty File.
func (s *Store) Load() (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f File
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("%w %s: %v", ErrMalformed, s.path, err)
	}
	return f, nil
}

// Apply overlays the stored values on base. Out-of-range values are skipped with a warning.
func (s *Store) Apply(base game.Settings) (game.Settings, error) {
	f, err := s.Load()
	if err != nil {
		return base, err
	}
	return f.overlay(base, s.logger), nil
}

func (f File) overlay(set game.Settings, logger *zap.Logger) game.Settings {
	if f.AIEnabled != nil {
		set.AIEnabled = *f.AIEnabled
	}
	switch {
	case f.AILevel == 0:
	case f.AILevel < 1 || f.AILevel > maxAILevel:
		logger.Warn("stored ai level ignored", zap.Int("level", f.AILevel))
	default:
		set.AILevel = f.AILevel
	}
	if f.AISide != "" {
		if side, err := reversidto.ParseSide(f.AISide); err != nil {
			logger.Warn("stored ai side ignored", zap.String("side", f.AISide))
		} else {
			set.AISide = side
		}
	}
	if f.ShowEval != nil {
		set.EvalEnabled = *f.ShowEval
	}
	if f.HumanOpening != "" {
		set.HumanOpening = f.HumanOpening
	}
	if f.BlackName != "" {
		set.BlackName = f.BlackName
	}
	if f.WhiteName != "" {
		set.WhiteName = f.WhiteName
	}
	return set
}

func fromSettings(set game.Settings) File {
	enabled, eval := set.AIEnabled, set.EvalEnabled
	return File{
		AIEnabled:    &enabled,
		AILevel:      set.AILevel,
		AISide:       string(set.AISide),
		ShowEval:     &eval,
		HumanOpening: set.HumanOpening,
		BlackName:    set.BlackName,
		WhiteName:    set.WhiteName,
	}
}

// Save writes set atomically.
func (s *Store) Save(set game.Settings) error {
	b, err := yaml.Marshal(fromSettings(set))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, filePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// OnSettings adapts Save to game.Config.OnSettings.
func (s *Store) OnSettings(set game.Settings) {
	if err := s.Save(set); err != nil {
		s.logger.Warn("save settings failed", zap.String("path", s.path), zap.Error(err))
	}
}
