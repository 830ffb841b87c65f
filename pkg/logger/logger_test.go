package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWithOptionsJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	t.Setenv("BACKCHANNEL_LOG_SINK", "file:"+path)
	InitWithOptions("info", "json")
	Info("format_check", "key", "value")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log sink: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("expected JSON log record, got %q: %v", b, err)
	}
	if rec["msg"] != "format_check" || rec["key"] != "value" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestInitWithOptionsTextDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	t.Setenv("BACKCHANNEL_LOG_SINK", "file:"+path)
	InitWithOptions("info", "")
	Info("format_check")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log sink: %v", err)
	}
	if !strings.Contains(string(b), "msg=format_check") {
		t.Fatalf("expected text record got %q", b)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	t.Setenv("BACKCHANNEL_LOG_SINK", "file:"+path)
	InitWithOptions("warn", "")
	Info("dropped")
	Warn("kept")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log sink: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("level filter not applied: %q", out)
	}
}
