package answer

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/m4s1t4/karen/internal/domain"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations scans the model output for [n] markers and resolves each
// to its passage. Only markers the model actually emitted become citations;
// out-of-range ordinals are ignored. Result is unique, ascending by ordinal.
func extractCitations(text string, passages []domain.Passage) []domain.Citation {
	if len(passages) == 0 {
		return nil
	}

	cited := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		cited[n] = true
	}
	if len(cited) == 0 {
		return nil
	}

	ordinals := make([]int, 0, len(cited))
	for n := range cited {
		ordinals = append(ordinals, n)
	}
	sort.Ints(ordinals)

	citations := make([]domain.Citation, len(ordinals))
	for i, n := range ordinals {
		p := passages[n-1]
		citations[i] = domain.Citation{
			Ordinal:    p.Ordinal,
			Content:    p.Content,
			Source:     p.Source,
			Page:       p.Page,
			Similarity: p.Score,
		}
	}
	return citations
}

// renderTrailer builds the human-readable sources block from the cited
// passages only.
func renderTrailer(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	var sources []string
	seen := make(map[string]bool)
	for _, c := range citations {
		if !seen[c.Source] {
			seen[c.Source] = true
			sources = append(sources, c.Source)
		}
	}

	var b strings.Builder
	b.WriteString("\n\n---\n**Sources:** ")
	b.WriteString(strings.Join(sources, ", "))
	b.WriteString("\n")
	for _, c := range citations {
		b.WriteString(fmt.Sprintf("- [%d] %s", c.Ordinal, c.Source))
		if c.Page > 0 {
			b.WriteString(fmt.Sprintf(", page %d", c.Page))
		}
		b.WriteString(fmt.Sprintf(" (relevance %.2f)\n", c.Similarity))
	}
	return strings.TrimRight(b.String(), "\n")
}
