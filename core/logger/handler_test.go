package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(h), func() string {
		if err := aw.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, done := newTestHandler(t, formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "service.posts"), slog.LevelInfo, "post.created",
		slog.String("status", "ok"),
		slog.String("post_id", "p-1"),
		slog.String("blog_id", "b-1"),
	)
	tokens := strings.Split(done(), " ")
	expected := []string{
		"ts=", "level=INFO", "component=service.posts", "event=post.created",
		"status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9",
		"blog_id=b-1", "post_id=p-1",
	}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%v)", len(tokens), tokens)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, done := newTestHandler(t, formatJSON)
	ctx := WithRID(Background(), "rid-json")

	LogEvent(ctx, log.With("component", "storage"), slog.LevelError, "storage.persist",
		slog.String("status", "fail"),
		slog.String("collection", "posts"),
		slog.String("err", "disk full"),
	)
	line := done()
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"storage"`, `"event":"storage.persist"`, `"status":"fail"`, `"rid":"rid-json"`, `"collection":"posts"`, `"err":"disk full"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	tests := []struct {
		format  logFormat
		want    string
		hasFull bool
	}{
		{formatKV, "rid=" + CompactRID("123:456:789"), false},
		{formatJSON, `"rid":"` + CompactRID("123:456:789") + `"`, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.format), func(t *testing.T) {
			log, done := newTestHandler(t, tc.format)
			LogEvent(WithRID(Background(), "123:456:789"), log, slog.LevelInfo, "rid.test")
			line := done()
			if !strings.Contains(line, tc.want) {
				t.Fatalf("expected %s in %s", tc.want, line)
			}
			if got := strings.Contains(line, "rid_full"); got != tc.hasFull {
				t.Fatalf("rid_full presence = %v, want %v (%s)", got, tc.hasFull, line)
			}
		})
	}
}

func TestStructuredHandlerDurationsAndDefaults(t *testing.T) {
	log, done := newTestHandler(t, formatKV)
	log.Info("", slog.Duration("duration", 1500000), slog.String("outcome", "bogus"))
	line := done()
	for _, want := range []string{"component=app", "event=unknown", "duration_ms=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID("36:72:1"); got != "10.20.1" {
		t.Fatalf("CompactRID = %s", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("CompactRID should pass through, got %s", got)
	}
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var passed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			passed++
		}
	}
	if passed != 3 {
		t.Fatalf("passed = %d, want 3", passed)
	}
	s.Set(0, 0)
	if !s.Allow() {
		t.Fatal("disabled sampler must allow everything")
	}
	if n, d := parseRatioSpec("2/5"); n != 2 || d != 5 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
	if n, d := parseRatioSpec("10"); n != 1 || d != 10 {
		t.Fatalf("parseRatioSpec = %d/%d", n, d)
	}
}
