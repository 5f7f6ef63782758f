package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewTextDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", "")

	l.Debug("hidden")
	l.Info("shown", "owner", "u1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "component=tiermem") || !strings.Contains(out, "owner=u1") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestNewJSONDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "DEBUG", "json")

	l.Debug("sweeping", "deleted", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "sweeping" || line["level"] != "DEBUG" || line["component"] != "tiermem" {
		t.Errorf("unexpected json line %v", line)
	}
	if line["deleted"] != float64(3) {
		t.Errorf("expected deleted=3, got %v", line["deleted"])
	}
}

func TestNewUnknownLevelFallsBack(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "loud", "yaml")

	l.Debug("hidden")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=kept") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := SetDefault(New(&buf, "warn", "text"))
	defer SetDefault(prev)

	Info("quiet")
	With("job", "sweep").Warn("slow run")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "job=sweep") || !strings.Contains(out, "msg=\"slow run\"") {
		t.Errorf("unexpected output %q", out)
	}
}
