package infra

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerTagsServiceAndHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogOptions{Env: "production", Level: "WARN", Service: "worker", Out: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %s", out)
	}
	if !strings.Contains(out, `"service":"worker"`) || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestLogLevelDefaults(t *testing.T) {
	cases := []struct {
		env, raw string
		want     zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "debug", zerolog.DebugLevel},
		{"development", "loud", zerolog.DebugLevel},
		{"production", " error ", zerolog.ErrorLevel},
	}
	for _, tc := range cases {
		if got := logLevel(tc.env, tc.raw); got != tc.want {
			t.Errorf("logLevel(%q, %q) = %v, want %v", tc.env, tc.raw, got, tc.want)
		}
	}
}
