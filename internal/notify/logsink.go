package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes notifications to the structured log. It is the
// default sink for headless deployments, where the actionable surface
// is the HTTP actions endpoint rather than a platform notification
// tray.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Enabled() bool { return true }

func (s *LogSink) Show(ctx context.Context, n Notification) error {
	s.log.Info().
		Str("id", n.ID).
		Str("channel", n.Channel).
		Str("title", n.Title).
		Str("text", n.Text).
		Msg("Notification")
	return nil
}

func (s *LogSink) Cancel(ctx context.Context, id string) error {
	s.log.Debug().Str("id", id).Msg("Notification cancelled")
	return nil
}

var _ Sink = (*LogSink)(nil)
