// Package events provides a fan-out publisher that dispatches engine events
// to every configured sink (live bus, durable journal).
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oddsline/settled/internal/domain"
)

// Fanout dispatches each event to all registered publishers. A single sink
// failure does not prevent delivery to the remaining sinks.
type Fanout struct {
	sinks  []domain.EventPublisher
	logger *slog.Logger
}

// NewFanout creates a Fanout over the given sinks.
func NewFanout(logger *slog.Logger, sinks ...domain.EventPublisher) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "events")),
	}
}

// Publish delivers the event to every sink and returns a combined error if
// any sink failed.
func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []string
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			f.logger.ErrorContext(ctx, "event sink failed",
				slog.String("topic", string(ev.Topic)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("events: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*Fanout)(nil)
