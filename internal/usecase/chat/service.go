// Package chat orchestrates conversations: session CRUD, the question
// answering path, and background summarization of fresh chats.
package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
)

// Config tunes the chat service.
type Config struct {
	HistoryWindow int // recent messages passed to the synthesizer
}

// Service implements the conversation operations behind the HTTP API.
type Service struct {
	repo       Repository
	chunks     ChunkScopeDeleter
	retriever  Retriever
	synth      Synthesizer
	summarizer Summarizer
	cfg        Config
	log        *zap.Logger
}

// New creates a chat service. summarizer may be nil to disable title
// generation.
func New(
	repo Repository, chunks ChunkScopeDeleter, r Retriever, s Synthesizer, sum Summarizer,
	cfg Config, log *zap.Logger,
) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	return &Service{
		repo:       repo,
		chunks:     chunks,
		retriever:  r,
		synth:      s,
		summarizer: sum,
		cfg:        cfg,
		log:        log,
	}
}

// Start creates a new conversation.
func (s *Service) Start(ctx context.Context) (domain.Chat, error) {
	chat, err := s.repo.Create(ctx, "New chat", "")
	if err != nil {
		return domain.Chat{}, fmt.Errorf("start chat: %w", err)
	}
	return chat, nil
}

// List returns all conversations, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Chat, error) {
	return s.repo.List(ctx)
}

// Get returns one conversation.
func (s *Service) Get(ctx context.Context, id string) (domain.Chat, error) {
	return s.repo.Get(ctx, id)
}

// History returns the full message history of a conversation.
func (s *Service) History(ctx context.Context, id string) ([]domain.Message, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id, 0)
}

// Delete removes a conversation, its messages and its stored chunks.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.chunks.DeleteScope(ctx, id); err != nil {
		return fmt.Errorf("delete chat chunks: %w", err)
	}
	return nil
}

// Answer processes one user message: retrieve grounded passages, synthesize
// a cited response, persist exactly one user and one assistant message. The
// returned assistant message carries the chat ID actually used, which may be
// a fresh one when the given ID was empty or stale.
func (s *Service) Answer(ctx context.Context, chatID, message string) (domain.Message, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	chatID, isNew, err := s.resolveChat(ctx, chatID)
	if err != nil {
		return domain.Message{}, err
	}

	history, err := s.repo.History(ctx, chatID, s.cfg.HistoryWindow)
	if err != nil {
		return domain.Message{}, fmt.Errorf("load history: %w", err)
	}

	passages, err := s.retriever.Retrieve(ctx, message, chatID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("retrieve context: %w", err)
	}

	ans, err := s.synth.Synthesize(ctx, message, passages, toTurns(history))
	if err != nil {
		return domain.Message{}, err
	}

	// History records complete exchanges only: a failed synthesis
	// persists neither turn and the client retries the whole question.
	if _, err := s.repo.AppendMessage(ctx, domain.Message{
		ChatID:  chatID,
		Role:    domain.RoleUser,
		Content: message,
	}); err != nil {
		return domain.Message{}, fmt.Errorf("persist user message: %w", err)
	}

	assistant, err := s.repo.AppendMessage(ctx, domain.Message{
		ChatID:     chatID,
		Role:       domain.RoleAssistant,
		Content:    ans.Text,
		References: ans.Citations,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("persist assistant message: %w", err)
	}

	if isNew || len(history) == 0 {
		s.summarize(ctx, chatID, message, ans.Text)
	}

	return assistant, nil
}

// resolveChat returns a usable chat ID, creating a conversation when the
// given one is empty or unknown. A stale reference is logged, never silently
// swapped.
func (s *Service) resolveChat(ctx context.Context, chatID string) (string, bool, error) {
	if chatID != "" {
		ok, err := s.repo.Exists(ctx, chatID)
		if err != nil {
			return "", false, fmt.Errorf("resolve chat %s: %w", chatID, err)
		}
		if ok {
			return chatID, false, nil
		}
		s.log.Warn("referenced chat missing, creating a new one", zap.String("chat_id", chatID))
	}

	chat, err := s.repo.Create(ctx, "New chat", "")
	if err != nil {
		return "", false, fmt.Errorf("create chat: %w", err)
	}
	return chat.ID, true, nil
}

// summarize sets the chat title and description after the first exchange.
// Failures are logged and absorbed: the answer already succeeded.
func (s *Service) summarize(ctx context.Context, chatID, question, response string) {
	if s.summarizer == nil {
		return
	}

	msgs := []domain.Message{
		{Role: domain.RoleUser, Content: question},
		{Role: domain.RoleAssistant, Content: response},
	}

	title, err := s.summarizer.Title(ctx, msgs)
	if err != nil {
		s.log.Warn("chat title generation failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	description, err := s.summarizer.Description(ctx, msgs)
	if err != nil {
		s.log.Warn("chat description generation failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	if err := s.repo.SetSummary(ctx, chatID, title, description); err != nil {
		s.log.Warn("chat summary update failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func toTurns(msgs []domain.Message) []domain.ChatTurn {
	if len(msgs) == 0 {
		return nil
	}
	turns := make([]domain.ChatTurn, len(msgs))
	for i, m := range msgs {
		turns[i] = domain.ChatTurn{Role: m.Role, Content: m.Content}
	}
	return turns
}
