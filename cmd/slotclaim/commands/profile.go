package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slotclaim/slotclaim/internal/profile"
)

var profileForce bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the stored account profile.",
}

var profileInitCmd = &cobra.Command{
	Use:   "init [--force]",
	Short: "Prompt for e-mail, password and participant id and save them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fs := profile.NewFileStore(cfg.ProfilePath)
		if fs.Exists() && !profileForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", fs.Path())
		}
		u, err := profile.Ask(profile.NewTermPrompter(os.Stdin, os.Stdout))
		if err != nil {
			return err
		}
		if err := fs.Save(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", fs.Path())
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored profile with the password masked.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		src, err := profileSource(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		u, err := src.Load(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.String())
		return nil
	},
}

func init() {
	profileInitCmd.Flags().BoolVar(&profileForce, "force", false, "overwrite an existing profile")
	profileCmd.AddCommand(profileInitCmd, profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}
