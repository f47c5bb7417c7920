// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phrasing

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Scrub reduces model output to one plain paragraph.
//
// # Description
//
// The text is parsed as Markdown and only its literal content is kept, so
// emphasis markers, headings, list bullets and code fences disappear while
// the words inside them survive. Emoji and pictographs are dropped and all
// whitespace runs collapse to single spaces.
//
// # Outputs
//
//   - string: the plain text, or "" when nothing readable remains.
func Scrub(s string) string {
	src := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.AutoLink:
			b.Write(node.Label(src))
		case *ast.FencedCodeBlock:
			writeLines(&b, node.Lines(), src)
		case *ast.CodeBlock:
			writeLines(&b, node.Lines(), src)
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(strings.Map(dropPictographs, b.String())), " ")
}

func writeLines(b *strings.Builder, lines *text.Segments, src []byte) {
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
		b.WriteByte(' ')
	}
}

// dropPictographs removes emoji, their variation selectors and joiners.
// Symbols below U+2000 such as the degree sign are kept.
func dropPictographs(r rune) rune {
	switch {
	case r == '\u200d', r == '\ufe0e', r == '\ufe0f':
		return -1
	case r >= 0x1f000 && r <= 0x1faff:
		return -1
	case r >= 0x2600 && r <= 0x27bf:
		return -1
	case r > 0x2000 && unicode.Is(unicode.So, r):
		return -1
	}
	return r
}
