package answer

import (
	"context"
	"fmt"

	"github.com/m4s1t4/karen/internal/domain"
)

// Synthesizer turns a query plus retrieved passages into a grounded, cited
// response. Pure request/response: no storage writes happen here.
type Synthesizer struct {
	completer   domain.Completer
	temperature float32
}

// NewSynthesizer creates a synthesizer. Temperature should stay low
// (0 to 0.3) to favor factual consistency.
func NewSynthesizer(c domain.Completer, temperature float32) *Synthesizer {
	return &Synthesizer{completer: c, temperature: temperature}
}

// Synthesize generates the answer. With passages the model is instructed to
// cite ordinals inline and the output gains a sources trailer derived from
// the markers it actually emitted. Without passages the model answers from
// general knowledge, no trailer, no citations. History provides recent
// conversational context and is passed through as-is.
func (s *Synthesizer) Synthesize(
	ctx context.Context, query string, passages []domain.Passage, history []domain.ChatTurn,
) (Answer, error) {
	system := buildSystemPrompt(promptRequest{
		Context: buildContextBlock(passages),
		Rules:   markdownRules,
	})

	turns := make([]domain.ChatTurn, 0, len(history)+2)
	turns = append(turns, domain.ChatTurn{Role: "system", Content: system})
	turns = append(turns, history...)
	turns = append(turns, domain.ChatTurn{Role: domain.RoleUser, Content: query})

	text, err := s.completer.Complete(ctx, turns, s.temperature)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	citations := extractCitations(text, passages)
	if trailer := renderTrailer(citations); trailer != "" {
		text += trailer
	}

	return Answer{Text: text, Citations: citations}, nil
}
