// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// intentsDir and policyPath hold the persistent flag values shared by the
// serve and validate commands.
var (
	intentsDir string
	policyPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "Natural-language question service over a cataloged SQL skeleton",
	Long: `askdb resolves Portuguese free-text questions to pre-approved,
parametrized SELECT templates, vets each bound query's execution plan with
EXPLAIN, and runs it replica-first against a MySQL primary/replica pair.`,
	SilenceUsage:     true,
	PersistentPreRun: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&intentsDir, "intents", "config/intents",
		"directory holding the intent catalog YAML files")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "",
		"runtime policy file (empty uses built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads a local .env if present and installs the process-wide logger.
// Environment variables already set in the process win over the .env file.
func setup(_ *cobra.Command, _ []string) {
	_ = godotenv.Load()

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
