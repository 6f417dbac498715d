// Package notify fans simulation and reconciliation alerts out to the
// configured channels. Senders are best-effort: a failing channel is logged
// and reported, never allowed to stall the planning or reconcile paths.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one rendered notification over a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs, e.g. "telegram".
	Name() string
}

// Notifier filters events against the configured allow-list and fans the
// surviving ones out to every sender.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events is
// the allow-list of event names; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the message to every sender if the event passes the
// allow-list. Sender failures are joined into one error after all senders
// have been tried.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[event]; !ok {
			n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
			return nil
		}
	}
	return n.fanOut(ctx, title, message)
}

// NotifyAll bypasses the event allow-list.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.fanOut(ctx, title, message)
}

func (n *Notifier) fanOut(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
