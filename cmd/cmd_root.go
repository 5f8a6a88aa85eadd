// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootOptions = struct {
	logLevel  string
	logFormat string
	envFile   string
}{}

var rootCmd = &cobra.Command{
	Use:   "addrcheck",
	Short: "validates and standardizes US postal addresses",
	Long: `
addrcheck asks several geocoding services about a free-form US address and
answers with the most trustworthy standardized version, either over HTTP or
from the command line.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := loadDotEnv(rootOptions.envFile); err != nil {
			return err
		}

		logger, err := newLogger(os.Stderr, rootOptions.logFormat, rootOptions.logLevel)
		if err != nil {
			return err
		}

		slog.SetDefault(logger)

		return nil
	},
}

var Version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVar(&rootOptions.logLevel, "log-level", "info",
		"log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&rootOptions.logFormat, "log-format", "text",
		"log format: text or json")
	rootCmd.PersistentFlags().StringVar(&rootOptions.envFile, "env-file", ".env",
		"dotenv file loaded before reading the environment")
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv loads path when it exists. Variables already set win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler

	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: l,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("time", a.Value.Time().Format(time.RFC3339Nano))
				}

				return a
			},
		})
	case "text", "":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return slog.New(h), nil
}
