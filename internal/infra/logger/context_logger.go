package logger

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	// Business context keys, following OpenTelemetry semantic
	// conventions with a 'helper.' prefix.
	RetrievalSetIDKey ContextKey = "helper.retrieval_set.id"
	IngestJobIDKey    ContextKey = "helper.ingest_job.id"
)

// WithRetrievalSetID stamps the retrieval set ID onto the context so every
// *Context log call in the pipeline carries it.
func WithRetrievalSetID(ctx context.Context, setID string) context.Context {
	return context.WithValue(ctx, RetrievalSetIDKey, setID)
}

// WithIngestJobID stamps the ingest job ID onto the context.
func WithIngestJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, IngestJobIDKey, jobID)
}

// contextAttrs extracts the stamped business keys as log attributes.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if setID, ok := ctx.Value(RetrievalSetIDKey).(string); ok {
		attrs = append(attrs, slog.String(string(RetrievalSetIDKey), setID))
	}
	if jobID, ok := ctx.Value(IngestJobIDKey).(string); ok {
		attrs = append(attrs, slog.String(string(IngestJobIDKey), jobID))
	}
	return attrs
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
