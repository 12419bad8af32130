// Package tui renders the Whisper client: a conversation sidebar and an
// open chat pane driven by the synchronization engine.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/whisper-im/whisper/internal/chat"
	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/models"
	"github.com/whisper-im/whisper/internal/notify"
	"github.com/whisper-im/whisper/internal/session"
	"github.com/whisper-im/whisper/internal/transport"
)

// Config assembles the TUI around an established session.
type Config struct {
	Session   *session.Session
	API       chat.API
	Transport transport.Transport

	SweepInterval time.Duration
	PollInterval  time.Duration

	Theme          string
	ShowTimestamps bool
}

type focusArea int

const (
	focusSidebar focusArea = iota
	focusChat
	focusPrompt
)

// refreshMsg asks for a re-render after the engine changed state.
type refreshMsg struct{}

// errorNoticeMsg surfaces a server-pushed or local error in the footer.
type errorNoticeMsg struct{ text string }

// conversationOpenedMsg carries a freshly opened conversation controller.
type conversationOpenedMsg struct {
	conversationID string
	ctl            *chat.ConversationController
}

// engine bundles the long-lived pieces shared across model copies.
type engine struct {
	cfg       Config
	scheduler *chat.Scheduler
	notifier  *notify.ReadNotifier
	list      *chat.ListController
	send      func(tea.Msg)
}

// Model is the root bubbletea model.
type Model struct {
	eng   *engine
	theme Theme

	width  int
	height int

	focus  focusArea
	cursor int

	activeID string
	active   *chat.ConversationController

	input  string
	prompt string
	notice string
}

func (e *engine) post(msg tea.Msg) {
	if e.send != nil {
		e.send(msg)
	}
}

func newModel(eng *engine) Model {
	return Model{
		eng:   eng,
		theme: ThemeByName(eng.cfg.Theme),
	}
}

// newEngine assembles the controllers behind the program. A read event
// published while no list handler is mounted falls back to a full list
// refetch so the unread state still converges once the list mounts.
func newEngine(cfg Config) *engine {
	logger := logging.Component("tui")

	eng := &engine{
		cfg:       cfg,
		scheduler: chat.NewScheduler(),
	}
	eng.notifier = notify.NewReadNotifier(notify.WithFallback(func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := eng.list.Refetch(ctx); err != nil && !errors.Is(err, chat.ErrStaleResult) {
				logger.Debug().Err(err).Msg("fallback refetch failed")
			}
		}()
	}))
	eng.list = chat.NewListController(chat.ListConfig{
		SelfPhone:    cfg.Session.Phone(),
		API:          cfg.API,
		Transport:    cfg.Transport,
		Scheduler:    eng.scheduler,
		Notifier:     eng.notifier,
		PollInterval: cfg.PollInterval,
		OnChange:     func() { eng.post(refreshMsg{}) },
		OnError:      func(text string) { eng.post(errorNoticeMsg{text: text}) },
	})
	return eng
}

// Run starts the TUI and blocks until the user quits.
func Run(cfg Config) error {
	eng := newEngine(cfg)

	p := tea.NewProgram(newModel(eng), tea.WithAltScreen())
	eng.send = p.Send

	defer eng.scheduler.StopAll()
	defer eng.list.Stop()

	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.eng.list.Start(ctx); err != nil {
			return errorNoticeMsg{text: "load failed: " + err.Error()}
		}
		return refreshMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case refreshMsg:
		m.clampCursor()
		return m, nil

	case errorNoticeMsg:
		m.notice = msg.text
		return m, nil

	case conversationOpenedMsg:
		// A stale open (user already backed out or switched) is closed
		// again instead of being installed.
		if m.focus == focusSidebar || m.activeID != msg.conversationID {
			msg.ctl.Close()
			return m, nil
		}
		m.active = msg.ctl
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == focusPrompt {
		return m.handlePromptKey(msg)
	}
	if m.focus == focusChat {
		return m.handleChatKey(msg)
	}
	return m.handleSidebarKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		m.cursor++
		m.clampCursor()
	case "n":
		m.focus = focusPrompt
		m.prompt = ""
		m.notice = ""
	case "enter":
		conversations := m.eng.list.Store().Snapshot()
		if m.cursor < len(conversations) {
			return m.openConversation(conversations[m.cursor])
		}
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.active != nil {
			m.active.Close()
			m.active = nil
		}
		m.activeID = ""
		m.focus = focusSidebar
		m.input = ""
		return m, nil
	case "enter":
		content := strings.TrimSpace(m.input)
		if content == "" || m.active == nil {
			return m, nil
		}
		m.input = ""
		active := m.active
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if _, err := active.Send(ctx, content); err != nil {
				return errorNoticeMsg{text: "send failed: " + err.Error()}
			}
			return refreshMsg{}
		}
	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		case tea.KeySpace:
			m.input += " "
		}
	}
	return m, nil
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.focus = focusSidebar
		m.prompt = ""
	case "enter":
		phone := strings.TrimSpace(m.prompt)
		m.prompt = ""
		m.focus = focusSidebar
		if phone == "" {
			return m, nil
		}
		list := m.eng.list
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if _, err := list.StartChat(ctx, phone); err != nil {
				return errorNoticeMsg{text: "start chat failed: " + err.Error()}
			}
			return refreshMsg{}
		}
	case "backspace":
		if len(m.prompt) > 0 {
			runes := []rune(m.prompt)
			m.prompt = string(runes[:len(runes)-1])
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.prompt += string(msg.Runes)
		}
	}
	return m, nil
}

// openConversation switches focus to the chat pane and opens the
// conversation asynchronously: cached messages render while the snapshot
// fetch and the bulk read acknowledgement run in the background.
func (m Model) openConversation(conv models.Conversation) (tea.Model, tea.Cmd) {
	if m.active != nil {
		m.active.Close()
		m.active = nil
	}
	m.activeID = conv.ID
	m.focus = focusChat
	m.notice = ""

	eng := m.eng
	openCmd := func() tea.Msg {
		ctl := chat.NewConversationController(chat.ConversationConfig{
			ConversationID: conv.ID,
			SelfPhone:      eng.cfg.Session.Phone(),
			API:            eng.cfg.API,
			Transport:      eng.cfg.Transport,
			Scheduler:      eng.scheduler,
			Notifier:       eng.notifier,
			SweepInterval:  eng.cfg.SweepInterval,
			OnChange:       func() { eng.post(refreshMsg{}) },
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ctl.Open(ctx, conv.Messages); err != nil {
			ctl.Close()
			return errorNoticeMsg{text: "open failed: " + err.Error()}
		}
		return conversationOpenedMsg{conversationID: conv.ID, ctl: ctl}
	}
	ackCmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := eng.list.MarkConversationRead(ctx, conv.ID); err != nil {
			return errorNoticeMsg{text: "mark read failed: " + err.Error()}
		}
		return refreshMsg{}
	}
	return m, tea.Batch(openCmd, ackCmd)
}

func (m *Model) clampCursor() {
	n := len(m.eng.list.Store().Order())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	sidebarWidth := m.width / 3
	if sidebarWidth < 24 {
		sidebarWidth = 24
	}
	chatWidth := m.width - sidebarWidth - 2
	paneHeight := m.height - 3

	conversations := m.eng.list.Store().Snapshot()
	sidebar := renderSidebar(conversations, m.eng.cfg.Session.Phone(), m.cursor,
		sidebarWidth, paneHeight, m.theme, m.focus == focusSidebar)

	var right string
	switch {
	case m.focus == focusPrompt:
		right = m.theme.paneStyle(true).Width(chatWidth).Height(paneHeight).
			Render("Start chat with phone number:\n\n> " + m.prompt + "█")
	case m.active != nil:
		conv, _ := m.eng.list.Store().Get(m.activeID)
		right = renderChat(conv, m.active.Store(), m.input,
			chatWidth, paneHeight, m.theme, m.focus == focusChat, m.eng.cfg.ShowTimestamps)
	case m.activeID != "":
		right = m.theme.paneStyle(true).Width(chatWidth).Height(paneHeight).
			Render(m.theme.mutedStyle().Render("opening..."))
	default:
		right = m.theme.paneStyle(false).Width(chatWidth).Height(paneHeight).
			Render(m.theme.mutedStyle().Render("select a conversation"))
	}

	footer := m.footerText()
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, right) + "\n" + footer
}

func (m Model) footerText() string {
	if m.notice != "" {
		return m.theme.unreadStyle().Render("! " + m.notice)
	}
	var help string
	switch m.focus {
	case focusSidebar:
		help = "↑/↓ navigate · enter open · n new chat · q quit"
	case focusChat:
		help = "enter send · esc back"
	case focusPrompt:
		help = "enter start · esc cancel"
	}
	return m.theme.footerStyle().Render(fmt.Sprintf(" %s", help))
}
