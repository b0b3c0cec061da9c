package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/slotclaim/slotclaim/internal/api"
	"github.com/slotclaim/slotclaim/internal/claim"
	"github.com/slotclaim/slotclaim/internal/profile"
	"github.com/slotclaim/slotclaim/pkg/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in and poll until a study is reserved.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWorkflow(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(ctx context.Context) error {
	runID := uuid.New()
	logger := log.With(zap.String("run_id", runID.String()))

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.DriverEnsure {
		if _, err := rt.provisioner().Ensure(ctx); err != nil {
			return fmt.Errorf("provision driver: %w", err)
		}
	}

	user, err := loadUser(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := rt.bind(user); err != nil {
		return err
	}

	sess, err := rt.acquirer.Acquire(ctx, user.Email, user.Password)
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	rt.tokens.SetCredential(sess.Credential)

	loop := claim.NewLoop(logger.Named("claim"), rt.client, rt.tokens, claim.Config{
		Interval:      cfg.PollInterval,
		ShortInterval: cfg.ShortInterval(),
		ParticipantID: user.ParticipantID,
		ClientID:      sess.ClientID,
	})

	if cfg.OpsPort > 0 {
		stop := serveOps(logger, cfg.OpsPort, api.NewApp(loop, rt.healthDeps()))
		defer stop()
	}

	logger.Info("slotclaim.started",
		zap.Duration("interval", cfg.PollInterval),
		zap.String("proxy", rt.proxy.String()),
		zap.String("participant_id", user.ParticipantID))

	res, err := loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("slotclaim.stopped", zap.Int("iterations", loop.Snapshot().Iterations))
		return nil
	}
	if err != nil {
		return err
	}

	return onSuccess(ctx, rt, logger, runID, user, res)
}

// onSuccess notifies, optionally confirms the account is still logged in,
// then waits for the operator.
func onSuccess(ctx context.Context, rt *runtime, logger *zap.Logger, runID uuid.UUID, user profile.User, res *claim.Result) error {
	evt := model.NewReservationEvent(runID, res.Study, user.ParticipantID, res.Iterations)
	logger.Info("slotclaim.reserved",
		zap.String("study_id", res.Study.ID),
		zap.String("study", res.Study.Name),
		zap.String("reward", res.Study.Reward.String()),
		zap.Int("iterations", res.Iterations),
		zap.Int("renewals", res.Renewals))

	notifier, sound, cleanup := notifiers(cfg, logger)
	defer cleanup()
	if err := notifier.Notify(ctx, evt); err != nil {
		logger.Warn("notify.failed", zap.Error(err))
	}

	if cfg.ConfirmLoginOnSuccess {
		if _, err := rt.acquirer.Acquire(ctx, user.Email, user.Password); err != nil {
			logger.Warn("slotclaim.confirm_login_failed", zap.Error(err))
		} else {
			logger.Info("slotclaim.login_confirmed")
		}
	}

	if cfg.PauseOnSuccess && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println("Press Enter to exit")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	if sound != nil {
		sound.Wait()
	}
	return nil
}

func serveOps(logger *zap.Logger, port int, app *fiber.App) func() {
	go func() {
		logger.Info("ops.listening", zap.Int("port", port))
		if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
			logger.Error("ops.listen_failed", zap.Error(err))
		}
	}()
	return func() {
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Warn("ops.shutdown_failed", zap.Error(err))
		}
	}
}
