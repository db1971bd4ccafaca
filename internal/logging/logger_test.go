package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&buf, "debug", "json")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.WithField("key", "cache:note:list").Info("cache hit")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	if entry["msg"] != "cache hit" {
		t.Errorf("msg = %v, want %q", entry["msg"], "cache hit")
	}
	if entry["key"] != "cache:note:list" {
		t.Errorf("key field = %v", entry["key"])
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&buf, "loud", "text")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}

	// Logger still usable at the info fallback level.
	log.Info("still works")
	if !strings.Contains(buf.String(), "still works") {
		t.Error("fallback logger dropped the message")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Debug("invisible")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Error("debug message leaked past warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn message missing")
	}
}
