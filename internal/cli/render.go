package cli

import (
	"fmt"
	"io"
	"strings"

	"ai-chat-app/backend/internal/client"
	"ai-chat-app/backend/internal/models"
)

func speaker(role models.Role) string {
	switch role {
	case models.RoleAI:
		return "ai"
	case models.RoleSystem:
		return "system"
	default:
		return "you"
	}
}

func printMessage(w io.Writer, m client.Message) {
	ts := "--:--"
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format("15:04")
	}
	var flags []string
	if m.Pending {
		flags = append(flags, "sending")
	}
	if m.Failed {
		flags = append(flags, "failed, /retry to resend")
	}
	if m.Metadata.Edited {
		flags = append(flags, "edited")
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " (" + strings.Join(flags, "; ") + ")"
	}
	fmt.Fprintf(w, "[%s] %s: %s%s\n", ts, speaker(m.Role), m.Content, suffix)
}

func printMessages(w io.Writer, msgs []client.Message) {
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printStats(w io.Writer, s *models.ChatMetadata) {
	if s == nil {
		fmt.Fprintln(w, "Stats unavailable")
		return
	}
	fmt.Fprintf(w, "Messages:      %d\n", s.TotalMessages)
	fmt.Fprintf(w, "Tokens:        %d\n", s.TotalTokens)
	fmt.Fprintf(w, "Model:         %s\n", s.AIModel)
	if !s.LastActivity.IsZero() {
		fmt.Fprintf(w, "Last activity: %s\n", s.LastActivity.Local().Format("2006-01-02 15:04:05"))
	}
}

func printHealth(w io.Writer, h *models.AIHealth) {
	if h == nil {
		fmt.Fprintln(w, "AI service status unknown")
		return
	}
	fmt.Fprintf(w, "AI service %s: %s\n", h.Service, h.Status)
	if h.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", h.Error)
	}
}
