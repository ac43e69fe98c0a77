package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := levelFromString(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %v %v, want %v", in, got, err, want)
		}
	}
	if _, err := levelFromString("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(Config{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	log.Info("dropped")
	log.Warn("kept", slog.String("task_id", "t1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "kept" || rec["task_id"] != "t1" {
		t.Fatalf("record = %v", rec)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partnertrack.log")
	log, closer, err := New(Config{Level: "debug", File: path})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hello file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("log file = %q", data)
	}
}
