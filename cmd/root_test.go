package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwbudde/hellocl/internal/gpu"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.name)
		if err != nil {
			t.Errorf("parseLogLevel(%q) failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := parseLogLevel("loud"); err == nil {
		t.Error("Expected error for unknown log level")
	}
}

func TestRootCommand_RejectsBadLogSettings(t *testing.T) {
	savedLevel, savedFormat := logLevel, logFormat
	t.Cleanup(func() { logLevel, logFormat = savedLevel, savedFormat })

	tests := []struct {
		level, format string
		want          string
	}{
		{"loud", "json", `unknown log level "loud"`},
		{"warn", "xml", `unknown log format "xml"`},
	}
	for _, tt := range tests {
		logLevel, logFormat = tt.level, tt.format
		err := rootCmd.PersistentPreRunE(rootCmd, nil)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("level=%q format=%q: got %v, want error containing %q", tt.level, tt.format, err, tt.want)
		}
	}
}

func TestBackendFlagUsage(t *testing.T) {
	usage := backendFlagUsage()
	for _, kind := range gpu.SupportedBackends() {
		if !strings.Contains(usage, string(kind)) {
			t.Errorf("usage %q does not mention %q", usage, kind)
		}
	}
}

func TestBackendFlagsAreIndependent(t *testing.T) {
	savedRun, savedInfo := runBackend, infoBackend
	t.Cleanup(func() { runBackend, infoBackend = savedRun, savedInfo })

	if err := runCmd.Flags().Set("backend", "mock"); err != nil {
		t.Fatal(err)
	}
	if runBackend != "mock" {
		t.Errorf("run --backend = %q, want mock", runBackend)
	}
	if infoBackend != string(gpu.BackendOpenCL) {
		t.Errorf("info --backend changed to %q by the run flag", infoBackend)
	}
	if runCmd.Flags().Lookup("backend").Usage != backendFlagUsage() {
		t.Error("run --backend usage is not built from the supported backends")
	}
}

func TestNewLogHandler(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newLogHandler(&buf, "json", slog.LevelInfo)).Info("hello", "stage", "init")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json handler wrote %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "text", slog.LevelInfo)).Info("hello", "stage", "init")
	if !strings.Contains(buf.String(), "stage=init") {
		t.Errorf("text handler wrote %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "text", slog.LevelWarn)).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record passed a warn-level handler: %q", buf.String())
	}
}
