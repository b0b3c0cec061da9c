package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var driverCmd = &cobra.Command{
	Use:   "driver",
	Short: "Manage the browser automation driver.",
}

var driverFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and unpack the latest driver unless it is already present.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := newRuntime(cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		path, err := rt.provisioner().Ensure(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	driverCmd.AddCommand(driverFetchCmd)
	rootCmd.AddCommand(driverCmd)
}
