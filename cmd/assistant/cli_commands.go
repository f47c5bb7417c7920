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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kargohat/assistant/pkg/logging"
	"github.com/kargohat/assistant/services/assistant"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logDir     string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "kargo-assistant",
		Short: "Customer-service assistant for shipment tracking and support",
		Long: `kargo-assistant answers customer messages about shipments: tracking,
cancellations, address changes, complaints, returns and billing.

Configuration is read from the YAML file given with --config and from
ASSISTANT_* environment variables. Logs always go to stderr; stdout carries
replies only.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to a dated file in this directory")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "format stderr logs as JSON")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newTurnCmd(opts))
	rootCmd.AddCommand(newInitDBCmd(opts))
	return rootCmd
}

func (o *rootOptions) newLogger(cmd *cobra.Command) (*logging.Logger, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  o.logDir,
		Service: "assistant",
		JSON:    o.jsonLogs,
		Writer:  cmd.ErrOrStderr(),
	})
}

// app bundles what a subcommand opens, so it can be closed in one call.
type app struct {
	cfg     assistant.Config
	logger  *logging.Logger
	service *assistant.Service
}

// open loads configuration and logging. When withService is set it also
// builds the assistant.
func (o *rootOptions) open(cmd *cobra.Command, withService bool) (*app, error) {
	cfg, err := assistant.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := o.newLogger(cmd)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg, logger: logger}
	if !withService {
		return rt, nil
	}

	rt.service, err = assistant.New(cmd.Context(), cfg, nil, logger.Slog())
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("start assistant: %w", err)
	}
	return rt, nil
}

func (r *app) Close() error {
	var errs []error
	if r.service != nil {
		errs = append(errs, r.service.Close())
	}
	errs = append(errs, r.logger.Close())
	return errors.Join(errs...)
}
