package client

import (
	"fmt"
	"time"
)

// Chat is one conversation session.
type Chat struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one conversation turn.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	References []Citation `json:"references,omitempty"`
}

// Citation is a source passage the assistant cited.
type Citation struct {
	Ordinal    int     `json:"ordinal"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Page       int     `json:"page,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Answer is the assistant reply to one message.
type Answer struct {
	ChatID    string     `json:"chat_id"`
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
}

// Upload reports the outcome of a document ingestion.
type Upload struct {
	Status        string  `json:"status"`
	FileName      string  `json:"file_name"`
	ChatID        string  `json:"chat_id"`
	NumChunks     int     `json:"num_chunks"`
	StoredChunks  int     `json:"stored_chunks"`
	DroppedChunks int     `json:"dropped_chunks"`
	Retries       int     `json:"retries"`
	SuccessRate   float64 `json:"success_rate"`
}

// Health is the server health report.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type chatList struct {
	Items []Chat `json:"items"`
	Total int    `json:"total"`
}

type messageList struct {
	Items []Message `json:"items"`
	Total int       `json:"total"`
}

// APIError is a non-2xx response decoded from the server error body.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("karen api: %d %s: %s", e.Status, e.Code, e.Message)
}
