package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4s1t4/karen/internal/domain"
)

const (
	titleMaxChars       = 50
	descriptionMaxChars = 150
	summaryTemperature  = 0.7
)

// ModelSummarizer derives chat titles and descriptions with the completion
// provider.
type ModelSummarizer struct {
	completer domain.Completer
}

// NewSummarizer creates a model-backed summarizer.
func NewSummarizer(c domain.Completer) *ModelSummarizer {
	return &ModelSummarizer{completer: c}
}

// Title generates a short chat title, hard-capped at 50 characters.
func (s *ModelSummarizer) Title(ctx context.Context, msgs []domain.Message) (string, error) {
	if len(msgs) == 0 {
		return "New chat", nil
	}

	prompt := fmt.Sprintf(
		"Based on the following conversation, generate a short title (at most %d characters) summarizing the main topic. Reply with the title only, no quotes, no trailing period.\n\nMessages:\n%s",
		titleMaxChars, formatMessages(msgs),
	)

	out, err := s.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return truncate(out, titleMaxChars), nil
}

// Description generates a brief chat description, hard-capped at 150
// characters.
func (s *ModelSummarizer) Description(ctx context.Context, msgs []domain.Message) (string, error) {
	if len(msgs) == 0 {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Based on the following conversation, generate a brief description (at most %d characters) summarizing the main points discussed. Reply with the description only, no trailing period.\n\nMessages:\n%s",
		descriptionMaxChars, formatMessages(msgs),
	)

	out, err := s.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate description: %w", err)
	}
	return truncate(out, descriptionMaxChars), nil
}

func (s *ModelSummarizer) complete(ctx context.Context, prompt string) (string, error) {
	out, err := s.completer.Complete(ctx,
		[]domain.ChatTurn{{Role: domain.RoleUser, Content: prompt}},
		summaryTemperature,
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`)), nil
}

func formatMessages(msgs []domain.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		role := "User"
		if m.Role == domain.RoleAssistant {
			role = "Assistant"
		}
		lines[i] = role + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
