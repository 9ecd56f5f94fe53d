package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jmcleod/mealdraw/session"
)

var (
	onConflict     string
	recordUsername string
	recordPassword string
)

var recordCmd = &cobra.Command{
	Use:   "record <category> <slot> <value>",
	Short: "Record a choice, e.g. record meal lunch ramen",
	Long: `Record a choice for today. When signed out, the choice is held while
you sign in and then replayed; if a different value is already recorded you
are asked whether to keep it or overwrite it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resolver, err := conflictResolver(onConflict)
		if err != nil {
			return err
		}
		a, err := newApp(cfg, cmd.OutOrStdout(), resolver)
		if err != nil {
			return err
		}
		defer a.close()

		a.store.SetPendingAction(session.NewRecordChoice(args[0], args[1], args[2]))

		if s := a.store.Restore(ctx); s.Authenticated {
			// Restore queued a background pass; Wait in close drains it.
			return nil
		}

		printField(a.out, "Status", "sign in to record your choice")
		username, password, err := promptCredentials(ctx, recordUsername, recordPassword)
		if err != nil {
			return err
		}
		return a.signIn(ctx, username, password)
	},
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&onConflict, "on-conflict", "ask", "What to do when a different value is already recorded: ask, keep or overwrite")
	recordCmd.Flags().StringVarP(&recordUsername, "username", "u", "", "Username if sign-in is needed (prompted if empty)")
	recordCmd.Flags().StringVarP(&recordPassword, "password", "p", "", "Password if sign-in is needed (prompted if empty)")
}
