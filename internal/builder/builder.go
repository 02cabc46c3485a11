// Package builder wires configuration into a ready-to-play session: transport, bridge,
// engine facade, renderers, archive and settings.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/deft-reversi-go/internal/archive"
	"github.com/park285/deft-reversi-go/internal/bridge"
	"github.com/park285/deft-reversi-go/internal/config"
	"github.com/park285/deft-reversi-go/internal/engine"
	"github.com/park285/deft-reversi-go/internal/events"
	"github.com/park285/deft-reversi-go/internal/game"
	"github.com/park285/deft-reversi-go/internal/msgcat"
	"github.com/park285/deft-reversi-go/internal/render"
	"github.com/park285/deft-reversi-go/internal/reversi"
	"github.com/park285/deft-reversi-go/internal/settings"
	"github.com/park285/deft-reversi-go/internal/transport"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const (
	dialTimeout    = 10 * time.Second
	archiveDataRel = "deft-reversi/games.db"
	recentListKey  = "reversi:recent"
)

// Deps is everything the play command needs. Close releases it in reverse order.
type Deps struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Catalog  *msgcat.Catalog
	Bus      *events.Bus
	Bridge   *bridge.Bridge
	Engine   *engine.Client
	Session  *game.Session
	Terminal *render.Terminal
	Archive  *archive.Archive
	Settings *settings.Store

	closers []func() error
}

// Options carries the pieces that differ between the CLI and tests.
type Options struct {
	Out     io.Writer
	Spinner *os.File
	Color   *bool
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts Options) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	d := &Deps{Config: cfg, Logger: logger, Bus: events.NewBus()}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	d.Catalog, err = msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	t, err := DialTransport(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// the bridge owns t from here on
	d.Bridge = bridge.New(t,
		bridge.WithLogger(logger.Named("bridge")),
		bridge.WithCallTimeout(cfg.EngineCallTimeout),
	)
	d.closers = append(d.closers, d.Bridge.Close)
	d.Engine = engine.NewClient(d.Bridge)

	d.Settings, err = settings.NewStore(cfg.SettingsFile, logger.Named("settings"))
	if err != nil {
		return nil, err
	}

	var archiveClose func() error
	d.Archive, archiveClose, err = OpenArchive(ctx, cfg, logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, archiveClose)

	termOpts := []render.TerminalOption{}
	if opts.Color != nil {
		termOpts = append(termOpts, render.WithColor(*opts.Color))
	}
	if opts.Spinner != nil {
		termOpts = append(termOpts, render.WithSpinner(opts.Spinner))
	}
	d.Terminal = render.NewTerminal(opts.Out, d.Catalog, termOpts...)
	renderers := []game.Renderer{d.Terminal}
	if strings.TrimSpace(cfg.SnapshotFile) != "" {
		renderers = append(renderers, render.NewSnapshot(cfg.SnapshotFile, d.Catalog, logger.Named("snapshot")))
	}

	gameCfg, err := SessionConfig(cfg, d.Settings)
	if err != nil {
		logger.Warn("stored settings ignored", zap.Error(err))
	}
	gameCfg.Logger = logger.Named("game")
	gameCfg.OnEnd = d.Archive.OnEnd
	gameCfg.OnSettings = d.Settings.OnSettings

	d.Session = game.New(d.Engine, render.NewMulti(renderers...), gameCfg)
	d.closers = append(d.closers, func() error { d.Session.Close(); return nil })
	unsubscribe := d.Session.Attach(d.Bus)
	d.closers = append(d.closers, func() error { unsubscribe(); return nil })
	return d, nil
}

// Close releases resources in reverse order of acquisition.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && !errors.Is(err, bridge.ErrClosed) && !errors.Is(err, transport.ErrClosed) {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// SessionConfig maps the environment onto game.Config and overlays stored settings.
// On a settings error the environment values are returned with the error.
func SessionConfig(cfg *config.AppConfig, store *settings.Store) (game.Config, error) {
	gc := game.DefaultConfig()
	gc.Settings.AIEnabled = cfg.AIEnabled
	gc.Settings.AILevel = cfg.AILevel
	gc.Settings.AISide = reversidto.Side(cfg.AISide)
	gc.Settings.EvalDepth = cfg.EvalDepth
	gc.Settings.EvalStep = cfg.EvalStep
	gc.PassDelay = cfg.PassDelay
	gc.AIFirstDelay = cfg.AIFirstDelay
	gc.UndoStepDelay = cfg.UndoStepDelay
	gc.UndoLimit = cfg.UndoLimit
	if store == nil {
		return gc, nil
	}
	set, err := store.Apply(gc.Settings)
	if err != nil {
		return gc, err
	}
	gc.Settings = set
	return gc, nil
}

// NewLocalEngine builds the in-process engine used by the pipe transport and
// `engine serve`.
func NewLocalEngine(cfg *config.AppConfig, logger *zap.Logger) *reversi.Engine {
	return reversi.NewEngine(reversi.Options{
		MaxDepth: cfg.EngineMaxDepth,
		Logger:   logger,
	})
}

// DialTransport opens the message boundary selected by ENGINE_TRANSPORT.
func DialTransport(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (bridge.Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.EngineTransport {
	case config.TransportPipe:
		eng := NewLocalEngine(cfg, logger.Named("engine"))
		return transport.NewPipe(eng, cfg.EngineWorkers), nil

	case config.TransportStdio:
		path, args, err := engineCommand(cfg.EngineCommand)
		if err != nil {
			return nil, err
		}
		s, err := transport.StartProcess(ctx, path, args, logger.Named("stdio"))
		if err != nil {
			return nil, fmt.Errorf("start engine process: %w", err)
		}
		return s, nil

	case config.TransportWS:
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		if cfg.EngineHTTPURL != "" {
			if err := transport.NewProbe(cfg.EngineHTTPURL).WaitReady(dctx); err != nil {
				return nil, fmt.Errorf("engine at %s: %w", cfg.EngineHTTPURL, err)
			}
		}
		ws := transport.NewWebSocket(cfg.EngineWSURL, transport.WithWebSocketLogger(logger.Named("ws")))
		ws.OnStateChange(func(state transport.WebSocketState) {
			logger.Debug("ws state", zap.Stringer("state", state))
		})
		if err := ws.Connect(dctx); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.EngineWSURL, err)
		}
		return ws, nil

	case config.TransportRedis:
		rdb, err := OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		r, err := transport.DialRedis(dctx, rdb, cfg.RedisChannel, logger.Named("redis"))
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return closeAlso(r, rdb.Close), nil

	default:
		return nil, fmt.Errorf("unsupported engine transport %q", cfg.EngineTransport)
	}
}

// engineCommand splits ENGINE_COMMAND; empty means this binary's own engine server.
func engineCommand(raw string) (string, []string, error) {
	fields := strings.Fields(raw)
	if len(fields) > 0 {
		return fields[0], fields[1:], nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate executable: %w", err)
	}
	return self, []string{"engine", "serve", "--stdio"}, nil
}

// OpenRedis parses a redis:// URL.
func OpenRedis(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// OpenArchive picks the SQL backend from DATABASE_DRIVER, adding the Redis recent list
// when REDIS_URL is set. Postgres without DATABASE_URL falls back to memory.
func OpenArchive(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*archive.Archive, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		repo    archive.Repository
		closers []func() error
	)
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	switch {
	case cfg.DatabaseDriver == archive.DriverSQLite && dsn == "":
		p, err := xdg.DataFile(archiveDataRel)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve archive path: %w", err)
		}
		dsn = p
		fallthrough
	case dsn != "":
		db, r, err := archive.Open(ctx, cfg.DatabaseDriver, dsn)
		if err != nil {
			return nil, nil, err
		}
		repo = r
		closers = append(closers, db.Close)
	default:
		logger.Warn("DATABASE_URL not set; games are kept in memory only")
		repo = archive.NewMemoryRepository()
	}

	opts := []archive.Option{archive.WithLogger(logger)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := OpenRedis(cfg.RedisURL)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		closers = append(closers, rdb.Close)
		opts = append(opts, archive.WithRecentList(archive.NewRecentList(rdb, recentListKey, 0)))
	}
	return archive.New(repo, opts...), func() error { return closeAll(closers) }, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i]())
	}
	return errors.Join(errs...)
}

type transportCloser struct {
	bridge.Transport
	extra func() error
}

func (t transportCloser) Close() error {
	return errors.Join(t.Transport.Close(), t.extra())
}

// closeAlso runs extra after t is closed.
func closeAlso(t bridge.Transport, extra func() error) bridge.Transport {
	return transportCloser{Transport: t, extra: extra}
}
