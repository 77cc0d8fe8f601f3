package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithWriter("soil-test", "0.0.1", InfoLevel, &buf)

	ctx := context.Background()
	logger.Debug(ctx, "[TEST] hidden", Fields{})
	logger.Info(ctx, "[TEST] shown", Fields{"nutrient": "P"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	entry := entries[0]
	if entry["message"] != "[TEST] shown" {
		t.Errorf("message = %v, want %v", entry["message"], "[TEST] shown")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["service"] != "soil-test" {
		t.Errorf("service = %v, want soil-test", entry["service"])
	}

	fields, ok := entry["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("fields missing from entry: %v", entry)
	}
	if fields["nutrient"] != "P" {
		t.Errorf("fields.nutrient = %v, want P", fields["nutrient"])
	}

	logger.SetLevel(DebugLevel)
	buf.Reset()
	logger.Debug(ctx, "[TEST] now visible", nil)
	if got := len(decodeLines(t, &buf)); got != 1 {
		t.Errorf("after SetLevel(Debug) got %d entries, want 1", got)
	}
}

func TestStructuredLogger_ErrorAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithWriter("soil-test", "0.0.1", DebugLevel, &buf)

	ctx := WithRequestID(context.Background(), "req-42")
	logger.Error(ctx, "[TEST_ERROR] lookup failed", Fields{"rung": 1}, errors.New("connection refused"))
	logger.Warn(ctx, "[TEST_WARN] falling back", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0]["error"] != "connection refused" {
		t.Errorf("error = %v, want connection refused", entries[0]["error"])
	}
	if entries[0]["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entries[0]["request_id"])
	}
	if entries[1]["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entries[1]["level"])
	}
}

func TestContextLogger_MergeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLoggerWithWriter("soil-test", "0.0.1", InfoLevel, &buf)

	cl := logger.WithFields(Fields{"component": "resolver", "nutrient": "K"})
	cl.Info(context.Background(), "[TEST] merged", Fields{"nutrient": "P"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	fields := entries[0]["fields"].(map[string]interface{})
	if fields["component"] != "resolver" {
		t.Errorf("component = %v, want resolver", fields["component"])
	}
	if fields["nutrient"] != "P" {
		t.Errorf("nutrient = %v, want call-site value P", fields["nutrient"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"info":    InfoLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
