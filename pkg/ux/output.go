// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the assistant CLI.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	ColorBrand   = lipgloss.Color("#F28C28") // Cargo orange - titles, assistant name
	ColorAccent  = lipgloss.Color("#20B9B4") // Teal - user prompt
	ColorMuted   = lipgloss.Color("#2C4A54") // Slate - hints, borders
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Assistant lipgloss.Style
	User      lipgloss.Style
	Muted     lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorBrand),
	Assistant: lipgloss.NewStyle().Bold(true).Foreground(ColorBrand),
	User:      lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBrand).
		Padding(0, 1),
}

// Console writes chat output. Styling is applied only when the writer is
// a terminal and NO_COLOR is unset, so piped output stays plain.
type Console struct {
	out    io.Writer
	styled bool
}

// NewConsole creates a Console for out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, styled: IsTerminal(out) && os.Getenv("NO_COLOR") == ""}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Styled reports whether output is styled.
func (c *Console) Styled() bool {
	return c.styled
}

func (c *Console) render(style lipgloss.Style, text string) string {
	if !c.styled {
		return text
	}
	return style.Render(text)
}

// Banner prints the session header.
func (c *Console) Banner(title, subtitle string) {
	if !c.styled {
		fmt.Fprintf(c.out, "%s\n%s\n\n", title, subtitle)
		return
	}
	fmt.Fprintln(c.out, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+Styles.Muted.Render(subtitle)))
	fmt.Fprintln(c.out)
}

// Prompt prints the user prompt without a newline.
func (c *Console) Prompt(label string) {
	fmt.Fprint(c.out, c.render(Styles.User, label+" › "))
}

// Reply prints one assistant reply.
func (c *Console) Reply(name, text string) {
	fmt.Fprintf(c.out, "%s %s\n\n", c.render(Styles.Assistant, name+":"), text)
}

// Muted prints secondary text.
func (c *Console) Muted(text string) {
	fmt.Fprintln(c.out, c.render(Styles.Muted, text))
}

// Warning prints a warning line.
func (c *Console) Warning(text string) {
	fmt.Fprintln(c.out, c.render(Styles.Warning, "! "+text))
}

// Error prints an error line.
func (c *Console) Error(err error) {
	fmt.Fprintln(c.out, c.render(Styles.Error, "✗ "+err.Error()))
}
