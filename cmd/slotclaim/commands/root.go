package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/pkg/config"
	"github.com/slotclaim/slotclaim/pkg/logger"
)

var (
	cfg *config.Config
	log *zap.Logger

	flagInterval string
	flagProxy    string
	flagNoPause  bool
	flagOpsPort  int
)

var rootCmd = &cobra.Command{
	Use:   "slotclaim",
	Short: "slotclaim watches the participant study list and reserves the first open slot.",
	Long: `slotclaim logs in, polls the participant study list and reserves the
first study that appears. Expired sessions are renewed silently from the
stored cookies. Running without a subcommand is the same as "slotclaim run".`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorkflow(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagInterval, "interval", "", "poll interval, seconds or Go duration (overrides POLL_INTERVAL)")
	pf.StringVar(&flagProxy, "proxy", "", "HTTP proxy host:port (overrides PROXY)")
	pf.BoolVar(&flagNoPause, "no-pause", false, "exit right after a reservation instead of waiting for Enter")
	pf.IntVar(&flagOpsPort, "ops-port", 0, "serve /metrics, /health and /status on this port (overrides OPS_PORT)")
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	defer logger.Sync()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if log != nil {
			log.Error("slotclaim.failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func setup(cmd *cobra.Command, _ []string) error {
	c := config.Load()
	if err := applyFlags(cmd, c); err != nil {
		return err
	}
	cfg = c
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	log = logger.L()
	return nil
}

func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("interval") {
		d, err := config.ParseSeconds(flagInterval)
		if err != nil {
			return fmt.Errorf("--interval: %w", err)
		}
		c.PollInterval = d
	}
	if flags.Changed("proxy") {
		c.Proxy = flagProxy
	}
	if flags.Changed("no-pause") {
		c.PauseOnSuccess = !flagNoPause
	}
	if flags.Changed("ops-port") {
		c.OpsPort = flagOpsPort
	}
	return nil
}
