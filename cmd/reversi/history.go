package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/park285/deft-reversi-go/internal/archive"
	"github.com/park285/deft-reversi-go/internal/builder"
	"github.com/park285/deft-reversi-go/internal/config"
	"github.com/park285/deft-reversi-go/internal/msgcat"
	"github.com/park285/deft-reversi-go/internal/obslog"
)

func History() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cat, err := msgcat.New(cfg.MessagesDir)
			if err != nil {
				return err
			}
			return runHistory(cmd.Context(), cfg, cat, cmd.OutOrStdout(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of games to show")
	return cmd
}

func runHistory(ctx context.Context, cfg *config.AppConfig, cat *msgcat.Catalog, out io.Writer, limit int) error {
	arc, closeFn, err := builder.OpenArchive(ctx, cfg, obslog.Component("archive"))
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	games, err := arc.Recent(ctx, limit)
	if err != nil {
		return err
	}
	header := color.New(color.FgGreen, color.Bold)
	fmt.Fprintln(out, header.Sprint(cat.Text("history.header", nil)))
	if len(games) == 0 {
		fmt.Fprintln(out, cat.Text("history.empty", nil))
		return nil
	}
	for _, g := range games {
		fmt.Fprintln(out, historyRow(cat, g))
	}
	return nil
}

func historyRow(cat *msgcat.Catalog, g *archive.Game) string {
	return cat.Text("history.row", map[string]any{
		"When":      g.FinishedAt.Local().Format("2006-01-02 15:04"),
		"BlackName": g.BlackName,
		"Black":     g.BlackScore,
		"White":     g.WhiteScore,
		"WhiteName": g.WhiteName,
		"Record":    g.Record,
	})
}
