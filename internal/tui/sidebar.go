package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/whisper-im/whisper/internal/models"
)

// renderSidebar draws the conversation list: display name, unread badge,
// last message preview, newest first.
func renderSidebar(conversations []models.Conversation, selfPhone string, cursor int, width, height int, theme Theme, active bool) string {
	var b strings.Builder
	b.WriteString(theme.headerStyle().Render("Chats"))
	b.WriteString("\n")

	if len(conversations) == 0 {
		b.WriteString(theme.mutedStyle().Render("no conversations yet"))
	}

	inner := width - 4
	if inner < 10 {
		inner = 10
	}

	visible := height - 3
	if visible < 1 {
		visible = 1
	}
	start := 0
	if cursor >= visible {
		start = cursor - visible + 1
	}

	for i := start; i < len(conversations) && i < start+visible; i++ {
		conv := conversations[i]
		line := conv.DisplayName()
		if conv.OtherOnline {
			line = theme.onlineStyle().Render("●") + " " + line
		}
		if unread := conv.UnreadCount(selfPhone); unread > 0 {
			line += " " + theme.unreadStyle().Render(fmt.Sprintf("(%d)", unread))
		}
		if i == cursor {
			line = theme.selectedStyle().Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(truncate(line, inner))
		b.WriteString("\n")

		if last := conv.LastMessage(); last != nil {
			preview := strings.ReplaceAll(last.Content, "\n", " ")
			b.WriteString(theme.mutedStyle().Render(truncate("    "+preview, inner)))
			b.WriteString("\n")
		}
	}

	return theme.paneStyle(active).Width(width).Height(height).Render(b.String())
}

func truncate(s string, max int) string {
	if lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
