package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the session credential.",
}

var tokenRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Acquire a session and print the masked bearer credential.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		user, err := loadUser(ctx, cfg, log)
		if err != nil {
			return err
		}
		if err := rt.bind(user); err != nil {
			return err
		}
		sess, err := rt.acquirer.Acquire(ctx, user.Email, user.Password)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "client_id:  %s\n", sess.ClientID)
		fmt.Fprintf(out, "credential: %s\n", sess.Credential)
		fmt.Fprintf(out, "cookies:    %d\n", len(sess.Cookies))
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenRenewCmd)
	rootCmd.AddCommand(tokenCmd)
}
