package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"notechat/internal/domain"
)

var (
	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	modelLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderTranscript lays messages out for a viewport of the given width.
func RenderTranscript(msgs []domain.ChatMessage, width int) string {
	if len(msgs) == 0 {
		return "No messages yet."
	}
	body := lipgloss.NewStyle()
	if width > 0 {
		body = body.Width(width)
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if msg.Role == domain.RoleUser {
			b.WriteString(userLabelStyle.Render("You"))
		} else {
			b.WriteString(modelLabelStyle.Render("Assistant"))
		}
		b.WriteString("\n")
		content := msg.Content
		if content == "" && msg.Role == domain.RoleModel {
			content = "..."
		}
		b.WriteString(body.Render(content))
		if lines := sourceLines(msg); len(lines) > 0 {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(strings.Join(lines, "\n")))
		}
	}
	return b.String()
}

func sourceLines(msg domain.ChatMessage) []string {
	var lines []string
	if len(msg.Sources) > 0 {
		lines = append(lines, "Sources:")
		for i, s := range msg.Sources {
			lines = append(lines, fmt.Sprintf("  [%d] %s (%s)", i+1, s.Title, s.Path))
		}
	}
	if len(msg.WebSources) > 0 {
		lines = append(lines, "Web sources:")
		for _, w := range msg.WebSources {
			title := w.Title
			if title == "" {
				title = w.URI
			}
			lines = append(lines, fmt.Sprintf("  %s — %s", title, w.URI))
		}
	}
	return lines
}
