package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.Key != "task_progress_app_v1" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Dashboard.UrgentDays != 7 || cfg.Dashboard.RecentLimit != 5 {
		t.Fatalf("unexpected dashboard defaults: %+v", cfg.Dashboard)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("base path = %q", cfg.Server.BasePath)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("storage:\n  backend: sqlite\ndashboard:\n  urgent_days: 3\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Key != "task_progress_app_v1" {
		t.Fatalf("key default lost: %q", cfg.Storage.Key)
	}
	if cfg.Dashboard.UrgentDays != 3 || cfg.Dashboard.RecentLimit != 5 {
		t.Fatalf("dashboard = %+v", cfg.Dashboard)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"storage:\n  backend: redis\n":        "storage.backend",
		"storage:\n  key: \"a/b\"\n":          "path separators",
		"storage:\n  key: \" \"\n":            "storage.key is required",
		"log:\n  format: xml\n":               "log.format",
		"dashboard:\n  urgent_days: -1\n":     "urgent_days",
		"dashboard:\n  recent_limit: -2\n":    "recent_limit",
		"server:\n  base_path: v1\n":          "base_path",
		"storage: [":                          "invalid config yaml",
	}
	for doc, want := range cases {
		_, err := FromYAML([]byte(doc))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%q: expected error containing %q, got %v", doc, want, err)
		}
	}
}

func TestWriteDefaultAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Storage.Backend != BackendFile {
		t.Fatalf("missing file should load defaults: %+v %v", cfg, err)
	}

	path, err := WriteDefault(dir)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if path != filepath.Join(dir, FileName) {
		t.Fatalf("path = %s", path)
	}
	if _, err := WriteDefault(dir); err == nil {
		t.Fatalf("second write should refuse to overwrite")
	}

	if err := os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
}
