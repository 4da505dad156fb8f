package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewTraceContextHandler(slog.NewJSONHandler(buf, nil)))
}

func TestTraceContextHandler_StampsBusinessContext(t *testing.T) {
	var buf bytes.Buffer
	log := captureLogger(&buf)

	ctx := WithRetrievalSetID(context.Background(), "set-42")
	ctx = WithIngestJobID(ctx, "job-7")
	log.InfoContext(ctx, "stage1_completed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "set-42", record[string(RetrievalSetIDKey)])
	assert.Equal(t, "job-7", record[string(IngestJobIDKey)])
}

func TestTraceContextHandler_PlainContextAddsNothing(t *testing.T) {
	var buf bytes.Buffer
	log := captureLogger(&buf)

	log.InfoContext(context.Background(), "stage1_completed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.NotContains(t, record, string(RetrievalSetIDKey))
	assert.NotContains(t, record, string(IngestJobIDKey))
	assert.NotContains(t, record, "trace_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
