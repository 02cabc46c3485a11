package main

import (
	"context"
	"errors"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/deft-reversi-go/internal/builder"
	"github.com/park285/deft-reversi-go/internal/config"
	"github.com/park285/deft-reversi-go/internal/obslog"
	"github.com/park285/deft-reversi-go/internal/transport"
)

func Engine() *cobra.Command {
	engine := &cobra.Command{
		Use:   "engine",
		Short: "Run the reversi engine side of the boundary",
		Args:  cobra.NoArgs,
	}
	engine.AddCommand(serve())
	return engine
}

type serveOptions struct {
	stdio bool
	http  string
	redis bool
}

func serve() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer engine calls over stdio, HTTP/WebSocket or Redis",
		Args:  cobra.NoArgs,
		Long: heredoc.Doc(`
			serve runs one engine and answers calls on every endpoint
			selected by flags. Without flags it listens on
			ENGINE_LISTEN_ADDR (GET /ready, GET /ws).

			--stdio speaks newline-delimited JSON on stdin/stdout and
			exits when stdin closes; it is what ENGINE_TRANSPORT=stdio
			launches.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !opts.stdio && !opts.redis && opts.http == "" {
				opts.http = cfg.EngineListenAddr
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "Serve on stdin/stdout")
	cmd.Flags().StringVar(&opts.http, "http", "", "Listen address for /ready and /ws")
	cmd.Flags().BoolVar(&opts.redis, "redis", false, "Serve on REDIS_URL, channel REDIS_CHANNEL")
	return cmd
}

func runServe(ctx context.Context, cfg *config.AppConfig, opts serveOptions) error {
	logger := obslog.Component("engine")
	eng := builder.NewLocalEngine(cfg, logger)
	if err := eng.Ready(); err != nil {
		logger.Error("engine failed to load", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.stdio {
		g.Go(func() error {
			errCh := make(chan error, 1)
			// stdin reads do not observe ctx
			go func() { errCh <- transport.ServeStream(gctx, os.Stdin, os.Stdout, eng, logger) }()
			select {
			case err := <-errCh:
				cancel()
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	if opts.http != "" {
		srv := transport.NewServer(opts.http, eng, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}
	if opts.redis {
		rdb, err := builder.OpenRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		srv := transport.NewRedisServer(rdb, cfg.RedisChannel, eng, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
