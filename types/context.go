package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRunID    contextKey = "run_id"
	keyTaskID   contextKey = "task_id"
	keyCrewName contextKey = "crew_name"
)

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithTaskID adds task ID to context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, keyTaskID, taskID)
}

// TaskID extracts task ID from context.
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTaskID).(string)
	return v, ok && v != ""
}

// WithCrewName adds crew name to context.
func WithCrewName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyCrewName, name)
}

// CrewName extracts crew name from context.
func CrewName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCrewName).(string)
	return v, ok && v != ""
}
