package chunks

import (
	"fmt"
	"strconv"

	"github.com/m4s1t4/karen/internal/db"
	"github.com/m4s1t4/karen/internal/domain"
)

// buildHashFields flattens a chunk into the hash layout the FT index covers.
func buildHashFields(ch *domain.Chunk, scopeID string) map[string]string {
	return map[string]string{
		fieldContent:     ch.Content,
		fieldVector:      string(db.VectorToBytes(ch.Embedding)),
		fieldChatID:      scopeID,
		fieldSource:      ch.Meta.Source,
		fieldPage:        strconv.Itoa(ch.Meta.Page),
		fieldChunkIndex:  strconv.Itoa(ch.Meta.ChunkIndex),
		fieldTotalChunks: strconv.Itoa(ch.Meta.TotalChunks),
	}
}

// parseHashFields rebuilds a chunk from its hash. The embedding is decoded
// only when the vector field was fetched.
func parseHashFields(m map[string]string) (domain.Chunk, error) {
	content, ok := m[fieldContent]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("missing %s field", fieldContent)
	}

	ch := domain.Chunk{
		Content: content,
		Meta: domain.ChunkMeta{
			Source:      m[fieldSource],
			Page:        atoiOrZero(m[fieldPage]),
			ChunkIndex:  atoiOrZero(m[fieldChunkIndex]),
			TotalChunks: atoiOrZero(m[fieldTotalChunks]),
		},
	}

	if raw, ok := m[fieldVector]; ok {
		vec, err := db.VectorFromBytes([]byte(raw))
		if err != nil {
			return domain.Chunk{}, fmt.Errorf("decode vector: %w", err)
		}
		ch.Embedding = vec
	}

	return ch, nil
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
