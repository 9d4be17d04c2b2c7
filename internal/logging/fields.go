package logging

import "log/slog"

// Common field names for consistent logging across the engine.
const (
	FieldService      = "service"
	FieldFeed         = "feed"
	FieldFeedType     = "feed_type"
	FieldSubject      = "subject_id"
	FieldEventID      = "event_id"
	FieldSequence     = "sequence"
	FieldSubscription = "subscription_id"
	FieldDeliveryMode = "delivery_mode"
	FieldError        = "error"
	FieldDuration     = "duration_ms"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Feed returns a slog attribute for the feed key.
func Feed(key string) slog.Attr {
	return slog.String(FieldFeed, key)
}

// Subject returns a slog attribute for the subject ID.
func Subject(id string) slog.Attr {
	return slog.String(FieldSubject, id)
}

// EventID returns a slog attribute for the event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Sequence returns a slog attribute for an event sequence number.
func Sequence(seq int64) slog.Attr {
	return slog.Int64(FieldSequence, seq)
}

// SubscriptionID returns a slog attribute for the subscription ID.
func SubscriptionID(id string) slog.Attr {
	return slog.String(FieldSubscription, id)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
