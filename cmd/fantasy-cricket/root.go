package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "fantasy-cricket",
	Short:         "Fantasy Cricket — контесты, кошелёк и админ-панель",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, promoteAdminsCmd, setRoleCmd, issueTokenCmd)
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, config.SetupLogger(cfg), nil
}
