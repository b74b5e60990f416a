package domain

import "errors"

var (
	// ErrChatNotFound signals a missing chat session.
	ErrChatNotFound = errors.New("chat not found")
	// ErrNoTextUnits signals a source file that yields no extractable text.
	ErrNoTextUnits = errors.New("no text units in source file")
	// ErrNoValidEmbeddings signals that every chunk of a file failed embedding validation.
	ErrNoValidEmbeddings = errors.New("no valid embeddings produced")
	// ErrNothingStored signals an ingestion where zero chunks survived storage.
	ErrNothingStored = errors.New("no chunks stored")
	// ErrVectorDimMismatch signals an embedding of unexpected dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCompletionProviderError signals a language model provider failure.
	ErrCompletionProviderError = errors.New("completion provider error")
	// ErrEmptyMessage signals a blank user message.
	ErrEmptyMessage = errors.New("empty message")
)
