package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/deft-reversi-go/internal/obslog"
)

func main() {
	opts := obslog.OptionsFromEnv()
	// stdout belongs to the board and to the stdio engine protocol
	opts.Stdout = os.Stderr
	if err := obslog.Init(opts); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = obslog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reversi(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		_ = obslog.Sync()
		os.Exit(1)
	}
}

func reversi(ctx context.Context) error {
	root := Root()
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}
