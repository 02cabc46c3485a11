package main

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/park285/deft-reversi-go/internal/obslog"
)

const version = "v0.3.0"

func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "reversi",
		Short: "Play reversi against a remote engine",
		Long: heredoc.Doc(`
			reversi drives a game of reversi against an engine that runs
			behind a message boundary: in process, as a subprocess over
			stdio, over a WebSocket or over Redis pub/sub.

			The engine side is served by "reversi engine serve"; the
			transport is chosen with ENGINE_TRANSPORT.`),
		Args: cobra.NoArgs,

		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flag("trace").Changed {
				return nil
			}
			opts := obslog.OptionsFromEnv()
			opts.Level = zapcore.DebugLevel
			opts.Stdout = cmd.ErrOrStderr()
			if err := obslog.Init(opts); err != nil {
				return err
			}
			obslog.L().Debug("trace logging enabled", zap.String("command", cmd.Name()))
			return nil
		},
	}

	root.PersistentFlags().BoolP("trace", "t", false, "Show debug logs")
	root.Version = version
	root.SetVersionTemplate(version + "\n")

	root.AddCommand(Play())
	root.AddCommand(Engine())
	root.AddCommand(Check())
	root.AddCommand(History())

	return root
}
