package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"conti/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		memberID string
		groups   []string
		ttl      time.Duration
		secret   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token granting a member access to groups",
		Example: `  contictl token --member alice --group 2f1c... --ttl 720h
  contictl token --member alice   # may only create groups`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = cfg.JWTSecret
			}
			if secret == "" {
				return errors.New("JWT_SECRET is not set; pass --secret or configure the environment")
			}
			if ttl <= 0 {
				return fmt.Errorf("invalid --ttl %v: must be positive", ttl)
			}
			tokens, err := auth.NewTokens(secret)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(memberID, groups, ttl)
			if err != nil {
				return err
			}
			logger.Info("Issued token", "member_id", memberID, "groups", len(groups), "ttl", ttl.String())
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "member id the token identifies")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "group id the token grants (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}
