package transcript

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"chat-client/internal/domain"
)

const jsonIndent = "  "

// RenderContent turns entry content into display text. Text is shown as-is
// apart from terminal control sequences, which are removed so neither the
// user nor the server can drive the terminal. Structured values become
// indented JSON in the order the server sent them.
func RenderContent(c domain.Content) string {
	if !c.Structured() {
		return Sanitize(c.Text)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.JSON, "", jsonIndent); err != nil {
		return Sanitize(string(c.JSON))
	}
	return Sanitize(buf.String())
}

// Sanitize strips ANSI escape sequences and any remaining control characters
// except newline and tab.
func Sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, s)
}

// RenderPlain renders entries one per block, prefixed with the sender. It is
// used by the one-shot command and by tests that need no terminal.
func RenderPlain(entries []domain.Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(e.Sender))
		sb.WriteString(": ")
		sb.WriteString(RenderContent(e.Content))
		sb.WriteString("\n")
	}
	return sb.String()
}
