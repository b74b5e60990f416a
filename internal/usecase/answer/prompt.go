package answer

import (
	"fmt"
	"strings"

	"github.com/m4s1t4/karen/internal/domain"
)

// markdownRules are the formatting instructions included in every prompt.
const markdownRules = `Respond in markdown following these rules:
1. For equations use $inline equations$ and $$block equations$$
2. For code blocks, use triple backticks with the language name
3. Use bold for important concepts
4. Use italics for emphasis
5. Use bullet points or numbered lists for sequential information
6. Use tables when comparing data
7. Use blockquotes for important notes`

const groundedInstructions = `Answer the question using the numbered context passages below.
- Base your answer on the context whenever it is relevant.
- If the context does not answer the question, say so explicitly and answer from general knowledge.
- Cite every context-derived claim inline with the passage ordinal in brackets, e.g. [2].
- Cite every passage you actually use, and only those.
- Write in clear paragraphs.`

const generalInstructions = `Answer the question from your general knowledge in clear paragraphs.`

// promptRequest carries everything the prompt template needs. The question
// itself travels as the final user turn, not inside the system prompt.
type promptRequest struct {
	Context string
	Rules   string
}

// buildSystemPrompt is the single place prompt text is assembled.
func buildSystemPrompt(req promptRequest) string {
	var b strings.Builder

	if req.Context != "" {
		b.WriteString(groundedInstructions)
	} else {
		b.WriteString(generalInstructions)
	}

	if req.Rules != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Rules)
	}

	if req.Context != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(req.Context)
	}

	return b.String()
}

// buildContextBlock renders passages as the numbered context the model
// cites against.
func buildContextBlock(passages []domain.Passage) string {
	if len(passages) == 0 {
		return ""
	}

	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("[%d] (relevance %.2f) %s", p.Ordinal, p.Score, p.Source))
		if p.Page > 0 {
			b.WriteString(fmt.Sprintf(", page %d", p.Page))
		}
		b.WriteString("\n")
		b.WriteString(p.Content)
	}
	return b.String()
}
