package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestTeeHandlerCollapsesNilAndSingle(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if TeeHandler(nil, inner) != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := TeeHandler(infoHandler, debugHandler)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee to be enabled for debug")
	}

	logger := slog.New(h).With("component", "sensor")
	logger.Debug("cursor advanced")
	logger.Info("evaluation complete")

	if bytes.Contains(infoBuf.Bytes(), []byte("cursor advanced")) {
		t.Fatal("info handler should not receive debug records")
	}
	for _, want := range []string{"cursor advanced", "evaluation complete", "sensor"} {
		if !bytes.Contains(debugBuf.Bytes(), []byte(want)) {
			t.Fatalf("debug handler missing %q: %s", want, debugBuf.String())
		}
	}
	if !bytes.Contains(infoBuf.Bytes(), []byte(`"component":"sensor"`)) {
		t.Fatalf("expected attrs propagated to every handler: %s", infoBuf.String())
	}
}
