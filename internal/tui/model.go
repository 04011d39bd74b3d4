// Package tui is the interactive terminal view of a chat session. It owns no
// chat state: every frame is rendered from a transcript snapshot.
package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chat-client/internal/domain"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	chromeHeight  = 4
	inputPrompt   = "> "
	placeholder   = "Ask something..."
)

// Submitter is satisfied by *usecase.ChatService.
type Submitter interface {
	Submit(input string) bool
}

// Source is satisfied by *transcript.Transcript.
type Source interface {
	Snapshot() []domain.Entry
	Subscribe() <-chan struct{}
}

type focusTarget int

const (
	focusInput focusTarget = iota
	focusSend
)

// transcriptChangedMsg is delivered after the transcript grows.
type transcriptChangedMsg struct{}

type Model struct {
	chat    Submitter
	source  Source
	changes <-chan struct{}

	input    textinput.Model
	viewport viewport.Model
	focus    focusTarget
	entries  []domain.Entry
	styles   Styles

	title  string
	width  int
	height int
}

func New(chat Submitter, source Source, title string) Model {
	in := textinput.New()
	in.Prompt = inputPrompt
	in.Placeholder = placeholder
	in.Focus()

	m := Model{
		chat:     chat,
		source:   source,
		changes:  source.Subscribe(),
		input:    in,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		styles:   DefaultStyles(),
		title:    title,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.resize()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.changes))
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return transcriptChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		if msg.Height > 0 {
			m.height = msg.Height
		}
		m.resize()
		m.refresh()
		return m, nil

	case transcriptChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)
	}

	var inputCmd, viewCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewCmd = m.viewport.Update(msg)
	return m, tea.Batch(inputCmd, viewCmd)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyTab, tea.KeyShiftTab:
		return m.toggleFocus()

	case tea.KeyEnter:
		// Enter in the field and Enter on the button both press send.
		return m.send(), nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusSend {
		if msg.Type == tea.KeySpace || msg.String() == " " {
			return m.send(), nil
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) toggleFocus() (tea.Model, tea.Cmd) {
	if m.focus == focusInput {
		m.focus = focusSend
		m.input.Blur()
		return m, nil
	}
	m.focus = focusInput
	return m, m.input.Focus()
}

// send is the send control: the input is cleared only when the chat client
// accepted it.
func (m Model) send() Model {
	if m.chat.Submit(m.input.Value()) {
		m.input.Reset()
	}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	m.entries = m.source.Snapshot()
	m.viewport.SetContent(renderTranscript(m.entries, m.viewport.Width, m.styles))
	m.viewport.GotoBottom()
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	h := m.height - chromeHeight
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	w := m.width - len(inputPrompt) - sendButtonWidth - 2
	if w < 1 {
		w = 1
	}
	m.input.Width = w
}

func (m Model) View() string {
	return m.styles.Title.Render(m.title) + "\n" +
		m.viewport.View() + "\n" +
		m.renderInputRow() + "\n" +
		m.styles.Help.Render("enter: send • tab: focus send button • pgup/pgdn: scroll • esc: quit")
}
