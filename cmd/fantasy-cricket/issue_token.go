package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/fantasy-cricket/internal/auth/token"
	"github.com/bigkaa/fantasy-cricket/internal/database"
	"github.com/bigkaa/fantasy-cricket/internal/repository"
)

var issueTokenEmail string

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Выпустить токен сессии для существующего пользователя",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if issueTokenEmail == "" {
			return errors.New("не задан --email")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL, cfg.JWTLeeway)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		principal, err := repository.NewPrincipalRepository(pool).GetByEmail(ctx, issueTokenEmail)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("пользователь %s не найден", issueTokenEmail)
			}
			return err
		}

		raw, expiresAt, err := manager.Issue(principal)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), raw)
		fmt.Fprintf(cmd.ErrOrStderr(), "role=%s expires_at=%s\n",
			principal.Role, expiresAt.UTC().Format("2006-01-02T15:04:05Z"))
		return nil
	},
}

func init() {
	issueTokenCmd.Flags().StringVar(&issueTokenEmail, "email", "", "email пользователя")
}
