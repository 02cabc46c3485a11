package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/park285/deft-reversi-go/internal/config"
	"github.com/park285/deft-reversi-go/internal/msgcat"
	"github.com/park285/deft-reversi-go/internal/transport"
)

func Check() *cobra.Command {
	var (
		url     string
		retries int
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe an engine server's /ready endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				url = cfg.EngineHTTPURL
			}
			cat := msgcat.Default()
			probe := transport.NewProbe(url, transport.WithProbeRetry(retries))
			if err := probe.WaitReady(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), cat.Text("engine.not_ready", map[string]any{"Err": err.Error()}))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cat.Text("engine.ready", nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Engine base URL (default ENGINE_HTTP_URL)")
	cmd.Flags().IntVar(&retries, "retries", 3, "Attempts before giving up")
	return cmd
}
