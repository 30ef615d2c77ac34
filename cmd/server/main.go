package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cvd-expert-server/internal/api"
	"github.com/cvd-expert-server/internal/app"
	"github.com/cvd-expert-server/internal/database"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "cvd-expert-server",
		Short:        "Cardiovascular expert system HTTP server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: config.yaml in ., ./config, /etc/cvd-expert-server)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logs, err := app.Build(app.Options{ConfigFile: configFile})
			if err != nil {
				return err
			}
			defer logs.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Load the knowledge base up front so a broken file is reported at startup.
			if err := a.Knowledge.Load(); err != nil {
				a.Logger.WithError(err).Error("Knowledge base failed to load; diagnoses will fail until it is fixed")
			}

			server := api.NewServer(a.Config, api.Dependencies{
				Diagnosis: a.Diagnosis,
				History:   a.History,
				Knowledge: a.Catalog,
				Health:    a.Health,
				Scores:    a.Scores,
			}, a.Logger)

			serveErr := server.Start(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				a.Logger.WithError(err).Warn("Shutdown incomplete")
			}
			a.Logger.Info("Server stopped")
			return serveErr
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL history schema",
	}

	run := func(op func(*database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			manager, logger, logs, err := app.Bootstrap(app.Options{ConfigFile: configFile})
			if err != nil {
				return err
			}
			defer logs.Close()

			dsn := manager.GetDatabaseConnectionString()
			if dsn == "" {
				return fmt.Errorf("database is not configured; set database.enabled and database.url or database.host")
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = manager.GetDatabaseConfig().MigrationsPath
			}

			runner, err := database.NewMigrationRunner(dsn, dir, logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return op(runner)
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  run(func(r *database.MigrationRunner) error { return r.Up() }),
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE:  run(func(r *database.MigrationRunner) error { return r.Down() }),
	}
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: run(func(r *database.MigrationRunner) error {
			version, dirty, err := r.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version: %d dirty: %t\n", version, dirty)
			return nil
		}),
	}
	for _, c := range []*cobra.Command{upCmd, downCmd, versionCmd} {
		c.Flags().String("dir", "", "Path to migrations directory (default from database.migrations_path)")
		cmd.AddCommand(c)
	}
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local history store",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write every SQLite history record as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logs, err := app.Build(app.Options{ConfigFile: configFile, Stdio: true})
			if err != nil {
				return err
			}
			defer logs.Close()
			defer a.Close(context.Background())

			var out io.Writer = cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return a.SQLite().ExportJSON(cmd.Context(), out)
		},
	}
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	cmd.AddCommand(exportCmd)
	return cmd
}
