package cmd

import (
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(cfg, cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		username, password, err := promptCredentials(ctx, loginUsername, loginPassword)
		if err != nil {
			return err
		}
		if err := a.signIn(ctx, username, password); err != nil {
			return err
		}
		s := a.store.Snapshot()
		printField(a.out, "Signed in", s.Username)
		printField(a.out, "Role", string(s.Role))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		s := a.store.Restore(cmd.Context())
		if !s.Authenticated {
			printField(a.out, "Status", "not signed in")
			return nil
		}
		a.store.Logout(cmd.Context())
		printField(a.out, "Signed out", s.Username)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(cfg, cmd.OutOrStdout(), nil)
		if err != nil {
			return err
		}
		defer a.close()

		s := a.store.Restore(ctx)
		if !s.Authenticated {
			printField(a.out, "Status", "not signed in")
			return nil
		}
		// The identity probe refreshes role and avatar and detects a
		// revoked token.
		if d := a.guard.Check(ctx, routeFor("/me")); !d.Allow {
			printField(a.out, "Status", "session no longer valid")
			return nil
		}
		s = a.store.Snapshot()
		printField(a.out, "User", s.Username)
		printField(a.out, "Role", string(s.Role))
		printField(a.out, "Avatar", s.AvatarURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted if empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted if empty)")
}
