package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chat-client/internal/domain"
	"chat-client/internal/transcript"
)

const (
	sendLabel       = "[ Send ]"
	sendButtonWidth = len(sendLabel)
)

type Styles struct {
	Title      lipgloss.Style
	UserLabel  lipgloss.Style
	BotLabel   lipgloss.Style
	Text       lipgloss.Style
	Structured lipgloss.Style
	Button     lipgloss.Style
	ButtonOn   lipgloss.Style
	Help       lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		UserLabel:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		BotLabel:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
		Text:       lipgloss.NewStyle().PaddingLeft(2),
		Structured: lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("250")),
		Button:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		ButtonOn:   lipgloss.NewStyle().Bold(true).Reverse(true),
		Help:       lipgloss.NewStyle().Faint(true),
	}
}

func senderLabel(s domain.Sender) string {
	if s == domain.SenderUser {
		return "You"
	}
	return "Bot"
}

// renderTranscript projects entries into the viewport's text.
func renderTranscript(entries []domain.Entry, width int, st Styles) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		label := st.BotLabel
		if e.Sender == domain.SenderUser {
			label = st.UserLabel
		}
		sb.WriteString(label.Render(senderLabel(e.Sender)))
		sb.WriteString("\n")

		// Structured content keeps its JSON layout; only text is wrapped.
		body := st.Structured
		if !e.Content.Structured() {
			body = st.Text
			if width > 4 {
				body = body.Width(width - 2)
			}
		}
		sb.WriteString(body.Render(transcript.RenderContent(e.Content)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderInputRow() string {
	button := m.styles.Button.Render(sendLabel)
	if m.focus == focusSend {
		button = m.styles.ButtonOn.Render(sendLabel)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.input.View(), " ", button)
}
