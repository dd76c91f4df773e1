package app

import (
	"fmt"

	"github.com/KevinKickass/et7000d/internal/auth"
	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue API credentials",
	}
	cmd.AddCommand(newTokenIssueCmd(), newTokenMachineCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var configPath, subject, role string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a JWT with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Auth.Enabled {
				return fmt.Errorf("auth is disabled in %s", configPath)
			}

			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			svc, err := auth.NewService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := svc.IssueToken(subject, r)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the config file")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. the client name")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer or operator")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newTokenMachineCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "machine <name>",
		Short: "Generate a machine token and the config entry holding its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := auth.ParseRole(role); err != nil {
				return err
			}

			token, err := auth.GenerateMachineToken(args[0])
			if err != nil {
				return err
			}
			hash, err := auth.NewTokenHasher().Hash(token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n\n", token)
			fmt.Fprintln(out, "auth:")
			fmt.Fprintln(out, "  tokens:")
			fmt.Fprintf(out, "    - name: %s\n      role: %s\n      hash: %q\n", args[0], role, hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer or operator")
	return cmd
}
