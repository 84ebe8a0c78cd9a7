package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/database"
	"github.com/bigkaa/fantasy-cricket/internal/domain/rbac"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
	"github.com/bigkaa/fantasy-cricket/internal/service"
)

var (
	setRoleEmail string
	setRoleValue string
)

var setRoleCmd = &cobra.Command{
	Use:   "set-role",
	Short: "Изменить сохранённую роль пользователя (USER или ADMIN)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if setRoleEmail == "" {
			return errors.New("не задан --email")
		}
		role := rbac.ParseRole(setRoleValue)
		if !role.IsValid() {
			return fmt.Errorf("недопустимая роль %q: ожидается USER или ADMIN", setRoleValue)
		}

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

		prev, err := accounts.SetRole(ctx, setRoleEmail, role)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return fmt.Errorf("пользователь %s не найден", setRoleEmail)
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", setRoleEmail, prev, role)
		if role == rbac.RoleUser && rbac.NewAllowlist(cfg.AdminEmails).Contains(setRoleEmail) {
			fmt.Fprintln(cmd.ErrOrStderr(), "внимание: email в FC_ADMIN_EMAILS, права администратора сохраняются через allowlist")
		}
		return nil
	},
}

func init() {
	setRoleCmd.Flags().StringVar(&setRoleEmail, "email", "", "email пользователя")
	setRoleCmd.Flags().StringVar(&setRoleValue, "role", "", "новая роль: USER или ADMIN")
}
