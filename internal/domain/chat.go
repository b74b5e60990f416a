package domain

import "time"

// Message roles. The core writes exactly these two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat is a conversation scope. Chunks and messages hang off its ID; deleting
// the chat cascades to both.
type Chat struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
}

// Message is one turn of a conversation. References is non-nil only on
// assistant messages that cited retrieved context.
type Message struct {
	ChatID     string
	Seq        int64
	Role       string
	Content    string
	CreatedAt  time.Time
	References []Citation
}
