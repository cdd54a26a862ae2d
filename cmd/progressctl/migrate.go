package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/youlearn/youlearn-progress/config"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/postgres"
	"github.com/youlearn/youlearn-progress/internal/infrastructure/persistence/sqlite"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: "Applies pending PostgreSQL migrations. The sqlite driver creates its schema on open; " +
		"the memory driver needs nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch cfg.Storage.Driver {
		case config.DriverMemory:
			fmt.Fprintln(out, "memory driver: nothing to migrate")
			return nil
		case config.DriverSQLite:
			st, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(out, "sqlite schema ready at %s\n", cfg.Storage.SQLitePath)
			return nil
		}

		conn, err := postgres.NewConnection(ctx, postgres.DefaultConfig(cfg.Database.URL))
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer conn.Close()
		m := postgres.NewMigrator(conn)

		if rollback, _ := cmd.Flags().GetBool("rollback"); rollback {
			if err := m.Rollback(ctx); err != nil {
				return err
			}
			log.Info("rolled back last migration")
		} else if status, _ := cmd.Flags().GetBool("status"); !status {
			n, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", logger.Int("count", n))
		}

		migrations, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, mg := range migrations {
			state := "pending"
			if mg.IsApplied {
				state = "applied " + mg.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "%04d  %-32s %s\n", mg.Version, mg.Name, state)
		}

		health, err := conn.Health(ctx)
		if err != nil {
			return err
		}
		if !health.Healthy {
			return fmt.Errorf("database unhealthy: %s", health.Error)
		}
		fmt.Fprintf(out, "pool: %d total, %d idle, %d acquired (ping %s)\n",
			health.TotalConns, health.IdleConns, health.AcquiredConns, health.PingLatency.Round(time.Microsecond))
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("status", false, "Only print migration status")
	migrateCmd.Flags().Bool("rollback", false, "Roll back the most recent migration")
}
