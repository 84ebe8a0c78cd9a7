package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/database"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

var promoteEmails []string

var promoteAdminsCmd = &cobra.Command{
	Use:   "promote-admins",
	Short: "Назначить роль ADMIN пользователям из allowlist и --email",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		accounts := service.NewAccountService(
			repository.NewPrincipalRepository(pool),
			repository.NewWalletRepository(pool),
			nil,
			rbac.NewAllowlist(cfg.AdminEmails),
			nil,
			logger,
		)

		promoted, err := accounts.PromoteAdmins(ctx, promoteEmails)
		if err != nil {
			return err
		}

		logger.Info("Продвижение администраторов завершено", slog.Int("promoted", len(promoted)))
		if len(promoted) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "нет пользователей для повышения")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(promoted, "\n"))
		return nil
	},
}

func init() {
	promoteAdminsCmd.Flags().StringSliceVar(&promoteEmails, "email", nil,
		"дополнительные email (можно указывать несколько раз)")
}
