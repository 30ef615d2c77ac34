package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cvd-expert-server/internal/app"
	"github.com/cvd-expert-server/internal/mcp"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:          "cvd-mcp-server",
		Short:        "Cardiovascular expert system as MCP tools over stdio",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logs, err := app.Build(app.Options{ConfigFile: configFile, Stdio: true})
			if err != nil {
				return err
			}
			defer logs.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			server := mcp.NewServer(a.Config, mcp.Dependencies{
				Diagnosis: a.Diagnosis,
				History:   a.History,
				Knowledge: a.Catalog,
				Scores:    a.Scores,
			}, a.Logger)
			runErr := server.Run(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				a.Logger.WithError(err).Warn("Shutdown incomplete")
			}
			a.Logger.Info("MCP server stopped")
			return runErr
		},
	}
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
