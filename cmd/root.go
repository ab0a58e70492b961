package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"
	"github.com/spf13/cobra"

	"github.com/cwbudde/hellocl/internal/gpu"
)

var (
	logLevel  string
	logFormat string
	logFile   string
	logger    *slog.Logger
	logRoller *rotator.Rotator
)

const (
	logFileThresholdKB = 10 * 1024
	logFileMaxRolls    = 3
)

var rootCmd = &cobra.Command{
	Use:   "hellocl",
	Short: "OpenCL host/device round-trip check",
	Long: `hellocl copies a buffer of random bytes through an identity OpenCL kernel,
verifies the device output against the input and reports build, launch and
CPU copy times.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		if logFormat != "json" && logFormat != "text" {
			return fmt.Errorf("unknown log format %q (want json or text)", logFormat)
		}

		var out io.Writer = os.Stderr
		if logFile != "" {
			if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			r, err := rotator.New(logFile, logFileThresholdKB, false, logFileMaxRolls)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			logRoller = r
			out = io.MultiWriter(os.Stderr, r)
		}

		logger = slog.New(newLogHandler(out, logFormat, level))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated by size")
}

func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
}

// backendFlagUsage lists the backends NewBackend accepts.
func backendFlagUsage() string {
	names := make([]string, 0, len(gpu.SupportedBackends()))
	for _, kind := range gpu.SupportedBackends() {
		names = append(names, string(kind))
	}
	return "Compute backend (" + strings.Join(names, ", ") + ")"
}

func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func closeLogFile() {
	if logRoller == nil {
		return
	}
	logRoller.Close()
	logRoller = nil
}
