package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, enabling zero-touch logging where business
// context (thread_id, strategy_slug, etc.) is automatically included in all log statements.
type LogFields struct {
	ThreadID     *string // workflow thread ID (also used as the webhook delivery correlation key)
	TaskID       *string // subscription task ID, when the workflow was batch-dispatched
	StrategySlug *string // strategy slug resolved for this request
	Phase        *string // current phase (scope, fill, research, finalize, qc)
	RequestHash  *string // scope classification fingerprint
	User         *string // requester email, when known (read for span attributes; not added to log records)
	Frequency    *string // subscription frequency, when batch-dispatched (read for span attributes; not added to log records)
	Component    string  // component name (OTel semantic convention style, e.g., "orchestrator.research")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ThreadID != nil {
		result.ThreadID = new.ThreadID
	}
	if new.TaskID != nil {
		result.TaskID = new.TaskID
	}
	if new.StrategySlug != nil {
		result.StrategySlug = new.StrategySlug
	}
	if new.Phase != nil {
		result.Phase = new.Phase
	}
	if new.RequestHash != nil {
		result.RequestHash = new.RequestHash
	}
	if new.User != nil {
		result.User = new.User
	}
	if new.Frequency != nil {
		result.Frequency = new.Frequency
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ThreadID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
