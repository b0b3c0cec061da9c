package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/pkg/model"
)

// Notifier announces a successful reservation.
type Notifier interface {
	Notify(ctx context.Context, evt model.ReservationEvent) error
}

// Bell rings the terminal bell and prints a one-line summary.
type Bell struct {
	w io.Writer
}

func NewBell(w io.Writer) *Bell { return &Bell{w: w} }

func (b *Bell) Notify(_ context.Context, evt model.ReservationEvent) error {
	_, err := fmt.Fprintf(b.w, "\aReserved %s (%s), reward %s\n", evt.StudyName, evt.StudyID, evt.Reward.String())
	return err
}

// Command runs a shell command in the background, e.g. to play a sound.
// Notify returns once the process has started.
type Command struct {
	logger  *zap.Logger
	command string
	wg      sync.WaitGroup
}

func NewCommand(logger *zap.Logger, command string) *Command {
	return &Command{logger: logger, command: command}
}

func (c *Command) Notify(_ context.Context, evt model.ReservationEvent) error {
	cmd := exec.Command("sh", "-c", c.command)
	cmd.Env = append(cmd.Environ(),
		"SLOTCLAIM_STUDY_ID="+evt.StudyID,
		"SLOTCLAIM_STUDY_NAME="+evt.StudyName,
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start notify command: %w", err)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := cmd.Wait(); err != nil {
			c.logger.Warn("notify.command_failed", zap.String("command", c.command), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every started command has exited.
func (c *Command) Wait() {
	c.wg.Wait()
}

// EventPublisher publishes a JSON payload to a subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject, eventType string, payload any) error
}

// EventNotifier publishes the reservation event on the message bus.
type EventNotifier struct {
	pub     EventPublisher
	subject string
}

func NewEventNotifier(pub EventPublisher, subject string) *EventNotifier {
	return &EventNotifier{pub: pub, subject: subject}
}

func (n *EventNotifier) Notify(ctx context.Context, evt model.ReservationEvent) error {
	return n.pub.Publish(ctx, n.subject, evt.EventType, evt)
}

// Multi fans out to every notifier; one failing does not stop the rest.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt model.ReservationEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
