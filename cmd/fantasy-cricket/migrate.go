package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Управление миграциями БД",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Применить все миграции",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Migrate(cfg, logger)
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Откатить последние миграции",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		return database.Rollback(cfg, migrateDownSteps, logger)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать текущую версию схемы",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		version, dirty, err := database.Version(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "количество откатываемых миграций")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
