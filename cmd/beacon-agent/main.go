// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/process"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/settings"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("beacon-agent", pflag.ContinueOnError)
	settingsPath := flagSet.String("settings", "settings.json", "path of the settings file (JSON or YAML)")
	logLevel := flagSet.String("log-level", envOr("BEACON_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	showVersion := flagSet.Bool("version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("beacon-agent %s\n", version.Info())
		return nil
	}

	logger, err := newLogger(os.Stderr, *logLevel)
	if err != nil {
		return err
	}

	loaded, err := settings.Load(*settingsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	agent, err := newAgent(agentConfig{
		Settings:  loaded,
		Clock:     clock.Real(),
		Logger:    logger.With("session", sessionID),
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

// newLogger returns a text logger when w is a terminal and a JSON
// logger otherwise.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	options := &slog.HandlerOptions{Level: parsed}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(w, options)), nil
	}
	return slog.New(slog.NewJSONHandler(w, options)), nil
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
