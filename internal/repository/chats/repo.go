// Package chats persists conversations and their messages. Chats are hashes
// under karen:chats:<id>; messages are hashes under karen:messages:<chatID>:<seq>
// with a per-chat sequence counter providing total order.
package chats

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m4s1t4/karen/internal/domain"
)

const (
	chatPrefix = domain.KeyPrefix + "chats:"
	msgPrefix  = domain.KeyPrefix + "messages:"
	seqPrefix  = domain.KeyPrefix + "msgseq:"
)

// store is the consumer interface for chat persistence (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Repo implements the session/message store.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates a chat repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// Create persists a new chat and returns it with a fresh ID.
func (r *Repo) Create(ctx context.Context, title, description string) (domain.Chat, error) {
	chat := domain.Chat{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.store.HSet(ctx, chatPrefix+chat.ID, buildChatFields(&chat)); err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// Get returns a chat by ID, or domain.ErrChatNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domain.Chat, error) {
	fields, err := r.store.HGetAll(ctx, chatPrefix+id)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat %s: %w", id, err)
	}
	// HGETALL answers an empty map for missing keys
	if len(fields) == 0 {
		return domain.Chat{}, domain.ErrChatNotFound
	}
	return parseChatFields(id, fields), nil
}

// Exists reports whether a chat hash is present.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.Exists(ctx, chatPrefix+id)
	if err != nil {
		return false, fmt.Errorf("check chat %s: %w", id, err)
	}
	return ok, nil
}

// List returns all chats, newest first.
func (r *Repo) List(ctx context.Context) ([]domain.Chat, error) {
	keys, err := r.store.Scan(ctx, chatPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan chats: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}

	chats := make([]domain.Chat, 0, len(hashes))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue // deleted between scan and fetch
		}
		chats = append(chats, parseChatFields(strings.TrimPrefix(keys[i], chatPrefix), fields))
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

// SetSummary updates the title and description of a chat.
func (r *Repo) SetSummary(ctx context.Context, id, title, description string) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrChatNotFound
	}
	fields := map[string]string{
		fieldTitle:       title,
		fieldDescription: description,
	}
	if err := r.store.HSet(ctx, chatPrefix+id, fields); err != nil {
		return fmt.Errorf("update chat %s: %w", id, err)
	}
	return nil
}

// Delete removes a chat, its sequence counter and all its messages. Chunk
// cleanup is the chunk repository's concern; the caller orchestrates both.
func (r *Repo) Delete(ctx context.Context, id string) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrChatNotFound
	}

	msgKeys, err := r.store.Scan(ctx, msgPrefix+id+":*")
	if err != nil {
		return fmt.Errorf("scan messages: %w", err)
	}

	keys := append(msgKeys, chatPrefix+id, seqPrefix+id)
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete chat %s: %w", id, err)
	}
	return nil
}

// AppendMessage persists one message for the chat, assigning the next
// sequence number.
func (r *Repo) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	seq, err := r.store.IncrBy(ctx, seqPrefix+msg.ChatID, 1)
	if err != nil {
		return domain.Message{}, fmt.Errorf("next message seq: %w", err)
	}

	msg.Seq = seq
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now().UTC()
	}

	fields, err := buildMessageFields(&msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode message: %w", err)
	}

	key := msgPrefix + msg.ChatID + ":" + strconv.FormatInt(seq, 10)
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// History returns the messages of a chat in sequence order. A limit of 0
// returns everything; otherwise the most recent limit messages.
func (r *Repo) History(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	keys, err := r.store.Scan(ctx, msgPrefix+chatID+":*")
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(hashes))
	for i, fields := range hashes {
		if len(fields) == 0 {
			continue
		}
		msg, err := parseMessageFields(chatID, keys[i], fields)
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", keys[i], err)
		}
		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
