package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/m4s1t4/karen/internal/domain"
	chatuc "github.com/m4s1t4/karen/internal/usecase/chat"
	healthuc "github.com/m4s1t4/karen/internal/usecase/health"
	ingestuc "github.com/m4s1t4/karen/internal/usecase/ingest"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API surface over the chat and ingestion services.
type Server struct {
	chats         *chatuc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	maxUploadMB   int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chats *chatuc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	maxUploadMB int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chats:       chats,
		ingest:      ingest,
		health:      health,
		logger:      logger,
		maxUploadMB: maxUploadMB,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrChatNotFound, http.StatusNotFound, codeChatNotFound),
		sentinelHandler(domain.ErrEmptyMessage, http.StatusBadRequest, codeEmptyMessage),
		sentinelHandler(domain.ErrNoTextUnits, http.StatusBadRequest, codeNoTextUnits),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrNoValidEmbeddings, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, codeCompletionProviderError),
		sentinelHandler(domain.ErrNothingStored, http.StatusServiceUnavailable, codeNothingStored),
	}
	return s
}

// Mount registers every route on the given router.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.healthCheck)
	r.Get("/metrics", s.metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chats", s.startChat)
		r.Get("/chats", s.listChats)
		r.Delete("/chats/{chatID}", s.deleteChat)
		r.Get("/chats/{chatID}/messages", s.chatHistory)
		r.Post("/chats/{chatID}/messages", s.postMessage)
		r.Post("/chats/{chatID}/documents", s.uploadDocument)
		r.Post("/documents", s.uploadDocument)
	})
}

// startChat handles POST /api/chats.
func (s *Server) startChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.Start(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chatToResponse(chat))
}

// listChats handles GET /api/chats.
func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]chatResponse, len(chats))
	for i, c := range chats {
		items[i] = chatToResponse(c)
	}
	writeJSON(w, http.StatusOK, chatListResponse{Items: items, Total: len(items)})
}

// deleteChat handles DELETE /api/chats/{chatID}.
func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.Delete(r.Context(), chi.URLParam(r, "chatID")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// chatHistory handles GET /api/chats/{chatID}/messages.
func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chats.History(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		items[i] = messageToResponse(m)
	}
	writeJSON(w, http.StatusOK, messageListResponse{Items: items, Total: len(items)})
}

// postMessage handles POST /api/chats/{chatID}/messages.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	assistant, err := s.chats.Answer(r.Context(), chi.URLParam(r, "chatID"), req.Message)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	citations := assistant.References
	if citations == nil {
		citations = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, answerResponse{
		ChatID:    assistant.ChatID,
		Response:  assistant.Content,
		Citations: citations,
	})
}

// uploadDocument handles the multipart document upload routes. The chatID
// URL param is optional; without one the ingestion creates a fresh chat and
// the response carries its ID.
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.maxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing file field: "+err.Error())
		return
	}
	defer file.Close()

	path, err := spoolUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("spool upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	defer os.Remove(path)

	summary, err := s.ingest.Ingest(r.Context(), path, chi.URLParam(r, "chatID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summaryToResponse(summary, filepath.Base(header.Filename)))
}

// healthCheck handles GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// spoolUpload writes the uploaded stream to a temp file. The original
// extension is preserved because the loader dispatches on it.
func spoolUpload(src multipart.File, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	tmp, err := os.CreateTemp("", "karen-upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return tmp.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrChatNotFound,
		domain.ErrEmptyMessage,
		domain.ErrNoTextUnits,
		domain.ErrVectorDimMismatch,
		domain.ErrNoValidEmbeddings,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
		domain.ErrNothingStored,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
