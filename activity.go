package auth

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType names a session lifecycle transition
type ActivityEventType string

const (
	ActivityEventLoginSuccess    ActivityEventType = "session.login.succeeded"
	ActivityEventLoginFailure    ActivityEventType = "session.login.failed"
	ActivityEventLogout          ActivityEventType = "session.logout"
	ActivityEventLogoutAll       ActivityEventType = "session.logout_all"
	ActivityEventSessionRevoked  ActivityEventType = "session.revoked"
	ActivityEventSessionExtended ActivityEventType = "session.extended"
	ActivityEventTokenRefreshed  ActivityEventType = "session.token_refreshed"
	ActivityEventSessionsSwept   ActivityEventType = "sessions.swept"
	ActivityEventSessionsPurged  ActivityEventType = "sessions.purged"
)

// ActivityEvent is what the SessionManager reports after each transition.
// UserID or SessionID are empty when the operation is not tied to one, e.g.
// a sweep.
type ActivityEvent struct {
	Type      ActivityEventType
	UserID    string
	SessionID string
	Metadata  map[string]any
	At        time.Time
}

// Fields flattens the event into key/value pairs for structured loggers
func (e ActivityEvent) Fields() []any {
	fields := make([]any, 0, 8+2*len(e.Metadata))
	fields = append(fields, "event", string(e.Type), "at", e.At)
	if e.UserID != "" {
		fields = append(fields, "user_id", e.UserID)
	}
	if e.SessionID != "" {
		fields = append(fields, "session_id", e.SessionID)
	}
	for k, v := range e.Metadata {
		fields = append(fields, k, v)
	}
	return fields
}

// ActivitySink receives activity events. Delivery is best effort, a sink
// error never fails the operation that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// ActivitySinks fans an event out to every sink, joining their errors
type ActivitySinks []ActivitySink

func (s ActivitySinks) Record(ctx context.Context, event ActivityEvent) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
