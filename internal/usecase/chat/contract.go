package chat

import (
	"context"

	"github.com/m4s1t4/karen/internal/domain"
	"github.com/m4s1t4/karen/internal/usecase/answer"
)

// Repository is the session/message store contract.
type Repository interface {
	Create(ctx context.Context, title, description string) (domain.Chat, error)
	Get(ctx context.Context, id string) (domain.Chat, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]domain.Chat, error)
	SetSummary(ctx context.Context, id, title, description string) error
	Delete(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	History(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
}

// ChunkScopeDeleter removes all stored chunks of a scope; part of chat
// deletion cascade.
type ChunkScopeDeleter interface {
	DeleteScope(ctx context.Context, scopeID string) error
}

// Retriever finds grounded passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, scopeID string) ([]domain.Passage, error)
}

// Synthesizer produces the cited answer text.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, passages []domain.Passage, history []domain.ChatTurn) (answer.Answer, error)
}

// Summarizer derives a chat title and description from its messages.
type Summarizer interface {
	Title(ctx context.Context, msgs []domain.Message) (string, error)
	Description(ctx context.Context, msgs []domain.Message) (string, error)
}
