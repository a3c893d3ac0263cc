package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewAppliesLevel(t *testing.T) {
	logger, err := New("debug", FileConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("not-a-level", FileConfig{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFileHookOnlyFiresAtOrAboveWarn(t *testing.T) {
	var buf bytes.Buffer
	hook := &fileHook{writer: &buf, formatter: &logrus.JSONFormatter{}, minLevel: logrus.WarnLevel}

	logger := logrus.New()
	logger.SetLevel(logrus.TraceLevel)
	logger.AddHook(hook)
	logger.Out = &bytes.Buffer{} // silence stdout during the test

	logger.Info("should not reach file")
	logger.Warn("should reach file")
	logger.Error("should also reach file")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines written to file hook, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("hook output is not JSON: %v", err)
	}
	if rec["msg"] != "should reach file" {
		t.Errorf("msg = %v, want %q", rec["msg"], "should reach file")
	}
}

func TestDefaultFileConfig(t *testing.T) {
	fc := DefaultFileConfig(filepath.Join(t.TempDir(), "error.log"))
	if fc.MaxSizeMB != 10 || fc.MaxBackups != 5 {
		t.Errorf("unexpected defaults: %+v", fc)
	}
}
