package flircapture

import (
	"context"
	"fmt"

	toggleswitch "go.viam.com/rdk/components/switch"
	"go.viam.com/rdk/logging"
)

// Notifier signals that a session finished. Failures are logged, never fatal.
type Notifier interface {
	NotifyCompletion(ctx context.Context, summary SessionSummary) error
}

type logNotifier struct {
	logger logging.Logger
}

func (n logNotifier) NotifyCompletion(ctx context.Context, summary SessionSummary) error {
	n.logger.Infof("image capture complete")
	n.logger.Infof("%d photos saved to %s", summary.ImageCount, summary.OutputPath)
	n.logger.Infof("total time elapsed: %.3f seconds", summary.ElapsedWallClockSeconds)
	return nil
}

// switchNotifier flips a switch component (stack light, buzzer relay) on completion.
type switchNotifier struct {
	sw       toggleswitch.Switch
	position uint32
}

func (n switchNotifier) NotifyCompletion(ctx context.Context, summary SessionSummary) error {
	if err := n.sw.SetPosition(ctx, n.position, nil); err != nil {
		return fmt.Errorf("setting completion switch: %w", err)
	}
	return nil
}

type multiNotifier []Notifier

func (m multiNotifier) NotifyCompletion(ctx context.Context, summary SessionSummary) error {
	for _, n := range m {
		if err := n.NotifyCompletion(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}
