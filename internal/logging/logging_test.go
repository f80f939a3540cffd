package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "chaekko.log")

	logger, cleanup, err := Setup(Config{
		Level:    "info",
		FilePath: logPath,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	logger.Info("search completed", slog.String("query", "해리포터"), slog.Int("total", 3))
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.SplitN(string(data), "\n", 2)[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "search completed" || entry["query"] != "해리포터" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "chaekko.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("visible")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "hidden") {
		t.Error("sub-threshold records written")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("warn record missing")
	}
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "chaekko.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer w.Close()

	// Two writes straddling the 1MB limit force one rotation.
	big := make([]byte, 768*1024)
	for i := range big {
		big[i] = 'x'
	}
	if _, err := w.Write(big); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write(big); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("rotated file missing: %v", err)
	}
}

func TestRotatingWriter_DropsHistoryPastMaxFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "chaekko.log")

	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer w.Close()

	big := make([]byte, 768*1024)
	for i := 0; i < 4; i++ {
		if _, err := w.Write(big); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for _, suffix := range []string{".1", ".2"} {
		if _, err := os.Stat(logPath + suffix); err != nil {
			t.Errorf("history file %s missing: %v", suffix, err)
		}
	}
	if _, err := os.Stat(logPath + ".3"); err == nil {
		t.Error("history past maxFiles must be dropped")
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}
