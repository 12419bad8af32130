package tui

import (
	"strings"

	"github.com/whisper-im/whisper/internal/chat"
	"github.com/whisper-im/whisper/internal/models"
)

// renderChat draws the open conversation: header with the other
// participant, messages oldest to newest, and the input line.
func renderChat(conv models.Conversation, store *chat.MessageStore, input string, width, height int, theme Theme, active, showTimestamps bool) string {
	var b strings.Builder

	header := conv.DisplayName()
	if conv.OtherOnline {
		header += " " + theme.onlineStyle().Render("online")
	} else if conv.OtherLastSeen != nil {
		header += " " + theme.mutedStyle().Render("last seen "+conv.OtherLastSeen.Format("15:04"))
	}
	b.WriteString(theme.headerStyle().Render(header))
	b.WriteString("\n\n")

	var lines []string
	for m := range store.All() {
		lines = append(lines, renderMessage(m, store.Mine(m), theme, showTimestamps))
	}

	// Keep the newest messages in view.
	visible := height - 6
	if visible < 1 {
		visible = 1
	}
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")

	prompt := "> " + input
	if active {
		prompt += "█"
	}
	b.WriteString(prompt)

	return theme.paneStyle(active).Width(width).Height(height).Render(b.String())
}

func renderMessage(m models.Message, mine bool, theme Theme, showTimestamps bool) string {
	var b strings.Builder
	if showTimestamps {
		b.WriteString(theme.mutedStyle().Render(m.SentAt.Local().Format("15:04") + " "))
	}
	if mine {
		b.WriteString(theme.ownStyle().Render("you: " + m.Content))
		if strings.HasPrefix(m.ID, "local-") {
			b.WriteString(theme.mutedStyle().Render(" ⋯"))
		} else if m.Read {
			b.WriteString(theme.mutedStyle().Render(" ✓✓"))
		} else {
			b.WriteString(theme.mutedStyle().Render(" ✓"))
		}
	} else {
		b.WriteString(theme.otherStyle().Render(m.Content))
	}
	return b.String()
}
