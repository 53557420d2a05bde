// Package notify delivers run reports through the configured channels.
// Channels are independent: one failing delivery never blocks another and
// never changes the run outcome.
package notify

import (
	"context"

	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/logging"
	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/progress"
)

// Channel delivers a sealed run report to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, r *model.Report) error
}

// ProgressChannel is implemented by channels that can additionally carry
// throttled live progress messages during long phases.
type ProgressChannel interface {
	Channel
	SendProgress(ctx context.Context, phase string, u progress.Update) error
}

// Dispatcher fans a report out to every configured channel.
type Dispatcher struct {
	channels []Channel
	log      *logging.Logger
}

// NewDispatcher builds the channel set from configuration. Disabled channels
// are simply absent.
func NewDispatcher(cfg config.NotificationConfig, log *logging.Logger) *Dispatcher {
	d := &Dispatcher{log: log}
	if cfg.Email.Enabled {
		d.channels = append(d.channels, NewEmailChannel(cfg.Email))
	}
	if cfg.Discord.Enabled {
		d.channels = append(d.channels, NewDiscordChannel(cfg.Discord))
	}
	return d
}

// NewDispatcherWith builds a dispatcher over explicit channels. Used by tests
// and by callers that construct channels themselves.
func NewDispatcherWith(log *logging.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.Name())
	}
	return names
}

// Dispatch sends the report to every channel. Delivery failures are logged
// as warnings and counted; the returned count is informational only.
func (d *Dispatcher) Dispatch(ctx context.Context, r *model.Report) int {
	failed := 0
	for _, c := range d.channels {
		if err := c.Send(ctx, r); err != nil {
			failed++
			d.log.Warn("notification delivery failed", map[string]any{
				"channel": c.Name(),
				"error":   err.Error(),
			})
		} else {
			d.log.Info("notification delivered", map[string]any{"channel": c.Name()})
		}
	}
	return failed
}

// Progress forwards a live progress update to every channel that supports
// it. Callers are expected to throttle; see progress.Throttle.
func (d *Dispatcher) Progress(ctx context.Context, phase string, u progress.Update) {
	for _, c := range d.channels {
		pc, ok := c.(ProgressChannel)
		if !ok {
			continue
		}
		if err := pc.SendProgress(ctx, phase, u); err != nil {
			d.log.Warn("progress notification failed", map[string]any{
				"channel": c.Name(),
				"error":   err.Error(),
			})
		}
	}
}
