package signaling

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/morichikawa/echa25/internal/protocol"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestReplyErrorQueuesEnvelope(t *testing.T) {
	c := NewClient(nil, nil, "c1", 1)
	c.replyError(protocol.ErrMalformed)

	msg := <-c.Send
	env, ok := msg.(protocol.Error)
	if !ok || env.Code != protocol.CodeMalformed {
		t.Errorf("expected a malformed error envelope, got %#v", msg)
	}
}

func TestReplyErrorLogsFailedDelivery(t *testing.T) {
	logs := captureLogs(t)

	c := NewClient(nil, nil, "c1", 0)
	c.replyError(protocol.ErrMalformed)
	if out := logs.String(); !strings.Contains(out, "Failed to deliver error") || !strings.Contains(out, ErrBackpressure.Error()) {
		t.Errorf("full buffer should be logged, got %q", out)
	}

	logs.Reset()
	c.close()
	c.replyError(protocol.ErrMalformed)
	if out := logs.String(); !strings.Contains(out, ErrGone.Error()) {
		t.Errorf("closed connection should be logged, got %q", out)
	}
}
