package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/park285/deft-reversi-go/internal/builder"
	"github.com/park285/deft-reversi-go/internal/config"
	"github.com/park285/deft-reversi-go/internal/events"
	"github.com/park285/deft-reversi-go/internal/obslog"
	revgame "github.com/park285/deft-reversi-go/internal/reversi"
	"github.com/park285/deft-reversi-go/pkg/reversidto"
)

const readyTimeout = 30 * time.Second

var (
	errUnknownCommand = errors.New("unknown command")
	errBadArgument    = errors.New("bad argument")
)

func Play() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start an interactive game",
		Args:  cobra.NoArgs,
		Long: heredoc.Doc(`
			play opens a game in the terminal. Type a coordinate such as
			f5 to move, or "help" for the other commands.

			Settings changed during the game (AI, level, side, opening,
			evaluation) are saved and restored on the next start.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts := builder.Options{Out: cmd.OutOrStdout(), Spinner: os.Stderr}
			if noColor {
				colored := false
				opts.Color = &colored
			}
			return runPlay(cmd.Context(), cfg, cmd.InOrStdin(), opts)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colours")
	return cmd
}

func runPlay(ctx context.Context, cfg *config.AppConfig, in io.Reader, opts builder.Options) error {
	deps, err := builder.New(ctx, cfg, obslog.L(), opts)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()
	term, cat := deps.Terminal, deps.Catalog

	rctx, cancel := context.WithTimeout(ctx, readyTimeout)
	err = deps.Engine.Ready(rctx)
	cancel()
	if err != nil {
		term.Print("%s\n", cat.Text("engine.not_ready", map[string]any{"Err": err.Error()}))
		return fmt.Errorf("engine not ready: %w", err)
	}
	term.Print("%s\n", cat.Text("engine.ready", nil))
	deps.Bus.Publish(events.NewGameClick{})

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go readLines(ctx, in, lines, done)

	prompt := cat.Text("prompt.input", nil)
	for {
		term.Print("%s", prompt)
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		ev, local, err := parseLine(line)
		switch {
		case errors.Is(err, errUnknownCommand):
			term.Print("%s\n", cat.Text("prompt.unknown", map[string]any{"Input": strings.TrimSpace(line)}))
		case err != nil:
			term.Notify(err)
		case local == cmdQuit:
			return nil
		case local == cmdHelp:
			term.Print("%s", cat.Text("prompt.help", nil))
		case local == cmdOpenings:
			term.Print("%s", openingList())
		case ev != nil:
			deps.Bus.Publish(ev)
		}
	}
}

// readLines feeds lines from in until EOF, ctx ends or the REPL returns.
func readLines(ctx context.Context, in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

type localCommand int

const (
	noLocal localCommand = iota
	cmdHelp
	cmdQuit
	cmdOpenings
)

// parseLine turns one line of input into a UI event or a command handled by the REPL.
func parseLine(line string) (events.Event, localCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, noLocal, nil
	}
	name, rest := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "help", "?":
		return nil, cmdHelp, nil
	case "quit", "exit", "q":
		return nil, cmdQuit, nil
	case "openings":
		return nil, cmdOpenings, nil
	case "new":
		return events.NewGameClick{}, noLocal, nil
	case "undo":
		return events.DoOverClick{}, noLocal, nil
	case "redo":
		return events.RedoClick{}, noLocal, nil
	case "eval":
		return events.SwitchShowEvalClick{}, noLocal, nil
	case "hint":
		n, err := intArg(name, rest)
		if err != nil {
			return nil, noLocal, err
		}
		return events.DeepHintClick{Depth: n}, noLocal, nil
	case "level":
		n, err := intArg(name, rest)
		if err != nil {
			return nil, noLocal, err
		}
		return events.SetAILevel{Level: n}, noLocal, nil
	case "ai":
		if len(rest) != 1 {
			return nil, noLocal, fmt.Errorf("ai on|off: %w", errBadArgument)
		}
		switch strings.ToLower(rest[0]) {
		case "on":
			return events.SetEnableAI{Enabled: true}, noLocal, nil
		case "off":
			return events.SetEnableAI{Enabled: false}, noLocal, nil
		}
		return nil, noLocal, fmt.Errorf("ai %q: %w", rest[0], errBadArgument)
	case "side":
		if len(rest) != 1 {
			return nil, noLocal, fmt.Errorf("side black|white: %w", errBadArgument)
		}
		side, err := reversidto.ParseSide(rest[0])
		if err != nil {
			return nil, noLocal, fmt.Errorf("%w: %w", errBadArgument, err)
		}
		return events.SetAITurn{Side: side}, noLocal, nil
	case "names":
		if len(rest) != 2 {
			return nil, noLocal, fmt.Errorf("names BLACK WHITE: %w", errBadArgument)
		}
		return events.SetPlayerName{Black: rest[0], White: rest[1]}, noLocal, nil
	case "opening":
		if len(rest) != 1 {
			return nil, noLocal, fmt.Errorf("opening none|ID: %w", errBadArgument)
		}
		return events.SetHumanOpening{Value: rest[0]}, noLocal, nil
	}
	if len(rest) == 0 {
		if cell, err := reversidto.ParseCell(name); err == nil {
			return events.BoardClick{Cell: cell}, noLocal, nil
		}
	}
	return nil, noLocal, fmt.Errorf("%w: %s", errUnknownCommand, line)
}

func intArg(name string, rest []string) (int, error) {
	if len(rest) != 1 {
		return 0, fmt.Errorf("%s N: %w", name, errBadArgument)
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, rest[0], errBadArgument)
	}
	return n, nil
}

func openingList() string {
	book, err := revgame.DefaultBook()
	if err != nil {
		return err.Error() + "\n"
	}
	var b strings.Builder
	for id, name := range book.Names() {
		fmt.Fprintf(&b, "%3d  %s\n", id, name)
	}
	return b.String()
}
