package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := Build(Options{Level: zapcore.InfoLevel, Console: true, Format: "json", Stdout: &buf})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("no file configured, close func should be nil")
	}
	logger.Debug("hidden")
	logger.Info("engine ready", zap.String("transport", "pipe"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "engine ready" || entry["transport"] != "pipe" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestBuildFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reversi.log")
	logger, closeFn, err := Build(Options{Level: zapcore.DebugLevel, ToFile: true, File: path, Format: "legacy"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	logger.Warn("undo limit reached")
	_ = logger.Sync()
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "WARN | ") || !strings.Contains(string(raw), "undo limit reached") {
		t.Fatalf("unexpected file content: %q", raw)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{"debug": zapcore.DebugLevel, "WARNING": zapcore.WarnLevel, "error": zapcore.ErrorLevel, "bogus": zapcore.InfoLevel}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
