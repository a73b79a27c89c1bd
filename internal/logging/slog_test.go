package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	ctx := context.Background()

	log.Info(ctx, "hidden", "a", 1)
	log.Warn(ctx, "shown", "b", 2)

	out := buf.String()
	assert.NotContains(t, out, "msg=hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "b=2")
}

func TestNewJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "", "")

	log.Info(context.Background(), "hello", "user", "alice")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "alice", entry["user"])
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "text")

	child := log.With("req_id", "123")
	child.Debug(context.Background(), "step", "k", "v")

	out := buf.String()
	for _, s := range []string{"level=DEBUG", "msg=step", "req_id=123", "k=v"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestDiscardDoesNotPanic(t *testing.T) {
	log := Discard()
	ctx := context.TODO()
	log.Info(ctx, "ok")
	log.Error(ctx, "ok")
	log.With("a", 1).Warn(ctx, "ok")
}
