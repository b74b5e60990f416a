package chats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m4s1t4/karen/internal/domain"
)

const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldCreatedAt   = "created_at"
	fieldRole        = "role"
	fieldContent     = "content"
	fieldReferences  = "references"
)

func buildChatFields(c *domain.Chat) map[string]string {
	return map[string]string{
		fieldTitle:       c.Title,
		fieldDescription: c.Description,
		fieldCreatedAt:   c.CreatedAt.Format(time.RFC3339Nano),
	}
}

func parseChatFields(id string, m map[string]string) domain.Chat {
	createdAt, _ := time.Parse(time.RFC3339Nano, m[fieldCreatedAt])
	return domain.Chat{
		ID:          id,
		Title:       m[fieldTitle],
		Description: m[fieldDescription],
		CreatedAt:   createdAt,
	}
}

func buildMessageFields(msg *domain.Message) (map[string]string, error) {
	fields := map[string]string{
		fieldRole:      msg.Role,
		fieldContent:   msg.Content,
		fieldCreatedAt: msg.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(msg.References) > 0 {
		raw, err := json.Marshal(msg.References)
		if err != nil {
			return nil, fmt.Errorf("marshal references: %w", err)
		}
		fields[fieldReferences] = string(raw)
	}
	return fields, nil
}

func parseMessageFields(chatID, key string, m map[string]string) (domain.Message, error) {
	seqStr := key[strings.LastIndex(key, ":")+1:]
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return domain.Message{}, fmt.Errorf("parse seq from key %s: %w", key, err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m[fieldCreatedAt])

	msg := domain.Message{
		ChatID:    chatID,
		Seq:       seq,
		Role:      m[fieldRole],
		Content:   m[fieldContent],
		CreatedAt: createdAt,
	}

	if raw, ok := m[fieldReferences]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.References); err != nil {
			return domain.Message{}, fmt.Errorf("unmarshal references: %w", err)
		}
	}
	return msg, nil
}
