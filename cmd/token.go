package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for local testing",
	Long: `Sign an HS256 bearer token with auth.jwt_secret.

Examples:
  eventreg token --sub alice
  eventreg token --sub org-1 --role organizer --ttl 8h`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		if tokenSubject == "" {
			return errors.New("--sub is required")
		}
		role := model.Role(tokenRole)
		switch role {
		case model.RoleUser, model.RoleOrganizer, model.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", tokenRole)
		}

		tok, err := handler.NewAuthenticator(cfg.Auth).Issue(model.Actor{ID: tokenSubject, Role: role}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "actor id placed in the sub claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(model.RoleUser), "user, organizer or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
