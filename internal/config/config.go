package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport kinds accepted by ENGINE_TRANSPORT.
const (
	TransportPipe  = "pipe"
	TransportStdio = "stdio"
	TransportWS    = "ws"
	TransportRedis = "redis"
)

type AppConfig struct {
	EngineTransport   string        `env:"ENGINE_TRANSPORT" envDefault:"pipe"`
	EngineCommand     string        `env:"ENGINE_COMMAND"`
	EngineWSURL       string        `env:"ENGINE_WS_URL" envDefault:"ws://127.0.0.1:8765/ws"`
	EngineHTTPURL     string        `env:"ENGINE_HTTP_URL" envDefault:"http://127.0.0.1:8765"`
	EngineListenAddr  string        `env:"ENGINE_LISTEN_ADDR" envDefault:"127.0.0.1:8765"`
	EngineCallTimeout time.Duration `env:"ENGINE_CALL_TIMEOUT" envDefault:"2m"`
	EngineWorkers     int           `env:"ENGINE_WORKERS" envDefault:"1"`
	EngineMaxDepth    int           `env:"ENGINE_MAX_DEPTH" envDefault:"10"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"reversi"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`

	AIEnabled bool   `env:"AI_ENABLED" envDefault:"true"`
	AILevel   int    `env:"AI_LEVEL" envDefault:"10"`
	AISide    string `env:"AI_SIDE" envDefault:"white"`

	EvalDepth int `env:"EVAL_DEPTH" envDefault:"8"`
	EvalStep  int `env:"EVAL_STEP" envDefault:"3"`

	PassDelay     time.Duration `env:"PASS_DELAY" envDefault:"1s"`
	AIFirstDelay  time.Duration `env:"AI_FIRST_DELAY" envDefault:"600ms"`
	UndoStepDelay time.Duration `env:"UNDO_STEP_DELAY" envDefault:"200ms"`
	UndoLimit     int           `env:"UNDO_LIMIT" envDefault:"70"`

	SettingsFile string `env:"SETTINGS_FILE"`
	MessagesDir  string `env:"MESSAGES_DIR"`
	SnapshotFile string `env:"SNAPSHOT_FILE"`
}

// Load parses the environment and validates the result.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.EngineTransport = strings.ToLower(strings.TrimSpace(c.EngineTransport))
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	c.AISide = strings.ToLower(strings.TrimSpace(c.AISide))
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
}

// Validate reports every invalid field at once.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.EngineTransport {
	case TransportPipe, TransportStdio, TransportWS:
	case TransportRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("ENGINE_TRANSPORT %q is not one of pipe, stdio, ws, redis", c.EngineTransport))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not one of postgres, sqlite", c.DatabaseDriver))
	}
	if c.AISide != "black" && c.AISide != "white" {
		errs = append(errs, fmt.Errorf("AI_SIDE %q is not black or white", c.AISide))
	}
	if c.AILevel < 1 || c.AILevel > 60 {
		errs = append(errs, fmt.Errorf("AI_LEVEL %d out of range 1-60", c.AILevel))
	}
	if c.EvalDepth < 1 || c.EvalStep < 1 {
		errs = append(errs, errors.New("EVAL_DEPTH and EVAL_STEP must be positive"))
	}
	if c.UndoLimit < 1 {
		errs = append(errs, errors.New("UNDO_LIMIT must be positive"))
	}
	if c.EngineWorkers < 1 {
		errs = append(errs, errors.New("ENGINE_WORKERS must be positive"))
	}
	if c.EngineMaxDepth < 1 {
		errs = append(errs, errors.New("ENGINE_MAX_DEPTH must be positive"))
	}
	if c.PassDelay < 0 || c.AIFirstDelay < 0 || c.UndoStepDelay < 0 || c.EngineCallTimeout < 0 {
		errs = append(errs, errors.New("delays and timeouts must not be negative"))
	}
	return errors.Join(errs...)
}
