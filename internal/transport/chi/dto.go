package chi

import (
	"time"

	"github.com/m4s1t4/karen/internal/domain"
	ingestuc "github.com/m4s1t4/karen/internal/usecase/ingest"
)

// errorCode is the machine-readable error discriminator of every error body.
type errorCode string

const (
	codeBadRequest              errorCode = "BAD_REQUEST"
	codeChatNotFound            errorCode = "CHAT_NOT_FOUND"
	codeEmptyMessage            errorCode = "EMPTY_MESSAGE"
	codeNoTextUnits             errorCode = "NO_TEXT_UNITS"
	codeVectorDimMismatch       errorCode = "VECTOR_DIM_MISMATCH"
	codeEmbeddingProviderError  errorCode = "EMBEDDING_PROVIDER_ERROR"
	codeCompletionProviderError errorCode = "COMPLETION_PROVIDER_ERROR"
	codeNothingStored           errorCode = "NOTHING_STORED"
	codeInternalError           errorCode = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type chatResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type chatListResponse struct {
	Items []chatResponse `json:"items"`
	Total int            `json:"total"`
}

type messageResponse struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	CreatedAt  time.Time         `json:"created_at"`
	References []domain.Citation `json:"references,omitempty"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Total int               `json:"total"`
}

type answerRequest struct {
	Message string `json:"message"`
}

type answerResponse struct {
	ChatID    string            `json:"chat_id"`
	Response  string            `json:"response"`
	Citations []domain.Citation `json:"citations"`
}

// Ingestion outcome statuses. Degraded means some chunks were lost but the
// document is still queryable.
const (
	ingestStatusSuccess  = "success"
	ingestStatusDegraded = "degraded"
)

type uploadResponse struct {
	Status        string  `json:"status"`
	FileName      string  `json:"file_name"`
	ChatID        string  `json:"chat_id"`
	NumChunks     int     `json:"num_chunks"`
	StoredChunks  int     `json:"stored_chunks"`
	DroppedChunks int     `json:"dropped_chunks"`
	Retries       int     `json:"retries"`
	SuccessRate   float64 `json:"success_rate"`
}

func chatToResponse(c domain.Chat) chatResponse {
	return chatResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

func messageToResponse(m domain.Message) messageResponse {
	return messageResponse{
		Role:       m.Role,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		References: m.References,
	}
}

// summaryToResponse reports the ingestion outcome. The original client
// filename replaces the spooled temp name the pipeline saw.
func summaryToResponse(s *ingestuc.Summary, filename string) uploadResponse {
	status := ingestStatusSuccess
	if s.SuccessRate() < 1 {
		status = ingestStatusDegraded
	}
	return uploadResponse{
		Status:        status,
		FileName:      filename,
		ChatID:        s.ScopeID,
		NumChunks:     s.NumChunks,
		StoredChunks:  s.StoredChunks,
		DroppedChunks: s.DroppedChunks,
		Retries:       s.Retries,
		SuccessRate:   s.SuccessRate(),
	}
}
