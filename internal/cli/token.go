package cli

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd mints a participant token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID    string
		sessionID string
		name      string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed participant token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.TokenSecret == "" {
				return fmt.Errorf("auth.tokenSecret not configured")
			}
			token, err := auth.NewVerifier(cfg.Auth.TokenSecret, clockwork.NewRealClock()).Issue(userID, sessionID, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 2*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
