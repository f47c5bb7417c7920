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
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kargohat/assistant/pkg/ux"
	"github.com/kargohat/assistant/services/assistant/datatypes"
)

const (
	chatQuitCommand = "/q"
	chatNewCommand  = "/yeni"
)

// turnHandler is the part of the engine the chat loop needs.
type turnHandler interface {
	HandleTurn(ctx context.Context, req datatypes.TurnRequest) (datatypes.TurnResponse, error)
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Long: `Starts an interactive conversation on one session.

  /yeni  start a new session
  /q     quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runChat(cmd.Context(), rt.service.Engine(), cmd.InOrStdin(), ux.NewConsole(cmd.OutOrStdout()))
		},
	}
}

// runChat reads user lines from in until EOF, /q or cancellation.
func runChat(ctx context.Context, h turnHandler, in io.Reader, console *ux.Console) error {
	sessionID := uuid.NewString()
	console.Banner("Kargo Asistanı", "Yeni oturum için /yeni, çıkmak için /q yazın.")
	console.Muted("oturum: " + sessionID)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 8*datatypes.MaxMessageBytes)
	for {
		console.Prompt("Siz")
		if !sc.Scan() {
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case chatQuitCommand:
			return nil
		case chatNewCommand:
			sessionID = uuid.NewString()
			console.Muted("oturum: " + sessionID)
			continue
		}

		resp, err := h.HandleTurn(ctx, datatypes.TurnRequest{SessionID: sessionID, Message: line})
		if err != nil {
			console.Error(err)
			continue
		}
		console.Reply("Asistan", resp.Reply)
	}
}
