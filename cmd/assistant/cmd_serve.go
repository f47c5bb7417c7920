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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kargohat/assistant/services/assistant/datatypes"
	"github.com/kargohat/assistant/services/assistant/shipping"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON line protocol on stdin/stdout",
		Long: `Reads one JSON request per line from stdin and writes one JSON reply per
line to stdout:

  {"session_id":"web-42","message":"Kargom nerede?"}
  {"session_id":"web-42","reply":"...","audio_ref":""}

Turns of different sessions run concurrently; turns of one session are
answered in order. serve exits when stdin is closed or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.service.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newTurnCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "turn [message]",
		Short: "Answer a single message and print the JSON reply",
		Long: `Answers one message and prints the reply as a JSON line.

Session state outlives the process only with the badger session backend;
with the in-memory backend every invocation starts a fresh session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp, err := rt.service.Engine().HandleTurn(cmd.Context(), datatypes.TurnRequest{
				SessionID: sessionID,
				Message:   strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (a new one is generated when empty)")
	return cmd
}

func newInitDBCmd(opts *rootOptions) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the shipping database schema",
		Long: `Creates the shipping database at the configured db_path. With --seed the
demo customers, orders, branches, tariff and invoices are loaded. Running it
again on an existing database changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			store, err := shipping.Open(cmd.Context(), shipping.Config{
				Path:   rt.cfg.DBPath,
				Seed:   seed,
				Logger: rt.logger.Slog(),
			})
			if err != nil {
				return err
			}
			defer store.Close()

			var customers, orders int
			row := store.DB().QueryRowContext(cmd.Context(),
				"SELECT (SELECT COUNT(*) FROM customers), (SELECT COUNT(*) FROM orders)")
			if err := row.Scan(&customers, &orders); err != nil {
				return fmt.Errorf("count rows: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s (%d customers, %d orders)\n",
				rt.cfg.DBPath, customers, orders)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "load the demo data set")
	return cmd
}
