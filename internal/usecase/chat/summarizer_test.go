package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/m4s1t4/karen/internal/domain"
)

type mockCompleter struct {
	out  string
	temp float32
}

func (m *mockCompleter) Complete(_ context.Context, _ []domain.ChatTurn, temperature float32) (string, error) {
	m.temp = temperature
	return m.out, nil
}

func TestSummarizerTitle(t *testing.T) {
	mc := &mockCompleter{out: `"Quarterly budget questions."`}
	s := NewSummarizer(mc)

	title, err := s.Title(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "what is the Q3 budget?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Quarterly budget questions." {
		t.Fatalf("quotes not stripped: %q", title)
	}
	if mc.temp != summaryTemperature {
		t.Fatalf("expected temperature %v, got %v", summaryTemperature, mc.temp)
	}
}

func TestSummarizerTitle_CappedAt50(t *testing.T) {
	mc := &mockCompleter{out: strings.Repeat("long title ", 20)}
	s := NewSummarizer(mc)

	title, err := s.Title(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(title)) > titleMaxChars {
		t.Fatalf("title exceeds %d chars: %d", titleMaxChars, len([]rune(title)))
	}
}

func TestSummarizerTitle_EmptyMessages(t *testing.T) {
	s := NewSummarizer(&mockCompleter{})

	title, err := s.Title(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "New chat" {
		t.Fatalf("expected default title, got %q", title)
	}
}

func TestSummarizerDescription_CappedAt150(t *testing.T) {
	mc := &mockCompleter{out: strings.Repeat("many words ", 30)}
	s := NewSummarizer(mc)

	desc, err := s.Description(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(desc)) > descriptionMaxChars {
		t.Fatalf("description exceeds %d chars: %d", descriptionMaxChars, len([]rune(desc)))
	}
}
