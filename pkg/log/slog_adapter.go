package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event. Auth rejections and errors are logged at warn level.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.CredentialID != "" {
		attrs = append(attrs, slog.String("credential", event.CredentialID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Message != nil:
		m := event.Message
		attrs = append(attrs,
			slog.Uint64("msg_id", uint64(m.MessageID)),
			slog.String("msg_type", m.Type.String()),
		)
		if m.Operation != nil {
			attrs = append(attrs, slog.String("operation", m.Operation.String()))
		}
		if m.Handle != nil {
			attrs = append(attrs, slog.Uint64("handle", uint64(*m.Handle)))
		}
		if m.Status != nil {
			attrs = append(attrs, slog.String("status", m.Status.String()))
		}
		if m.ValueSize > 0 {
			attrs = append(attrs, slog.Int("value_size", m.ValueSize))
		}
		if m.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *m.ProcessingTime))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Auth != nil:
		attrs = append(attrs,
			slog.Uint64("handle", uint64(event.Auth.Handle)),
			slog.Bool("write", event.Auth.Write),
			slog.String("outcome", event.Auth.Outcome.String()),
		)
		if event.Auth.ClaimedID != "" {
			attrs = append(attrs, slog.String("claimed_id", event.Auth.ClaimedID))
		}
		if event.Auth.Outcome != AuthAccepted {
			level = slog.LevelWarn
		}
	case event.Transition != nil:
		tr := event.Transition
		attrs = append(attrs,
			slog.String("transition", tr.Kind.String()),
			slog.String("subject", tr.Subject),
		)
		if tr.Permission != "" {
			attrs = append(attrs, slog.String("permission", tr.Permission))
		}
		if tr.Error != "" {
			attrs = append(attrs, slog.String("error", tr.Error))
			level = slog.LevelWarn
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
		level = slog.LevelWarn
	}

	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
