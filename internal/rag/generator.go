package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognivyu/cognivyu/internal/domain"
)

// InsufficientInformation is the sentence the model must use when the
// documents and history cannot answer the question.
const InsufficientInformation = "The provided materials do not contain enough information to answer this question."

// NoHistory stands in for the chat history of a new conversation.
const NoHistory = "No history yet."

const answerTemplate = `
You are a specialized assistant that answers questions STRICTLY based on the provided documents and chat history.

*** CRITICAL RULES ***
1.  **Grounding:** Your entire response MUST be based SOLELY on the information within the "Retrieved Documents" section below.
2.  **Domain Extraction:** If the question involves domains, you MUST return ONLY the unique values of the field "domain" from the retrieved documents.
      - Each domain should be listed on a new line.
      - Do not add explanations, summaries, or extra text.
3.  **Use Chat History:** Pay close attention to the "Chat History" to understand follow-up questions. If the user asks "what about the second one?", use the history to identify what "the second one" refers to.
4.  **No External Knowledge:** DO NOT use any external knowledge, personal opinions, or information you were trained on. Your knowledge is limited to the documents provided.
5.  **Handling Missing Information:** If the documents and history do not contain enough information to answer the question, you MUST explicitly state: "{insufficient}"
6.  **Citation:** You must cite the source for every piece of information you provide, using the format [source_file | page].
      - If only domains are asked, citations are NOT required.
7.  **Conciseness & Formatting:** Keep the response under 400 words and use Markdown for clarity (headings, bullet points, bold text).

---
Chat History:
{chat_history}
---
Retrieved Documents:
{context}
---
Current Question:
{question}
`

// Generator produces a grounded answer with one completion call.
type Generator struct {
	llm Completer
}

// NewGenerator creates a generator.
func NewGenerator(llm Completer) *Generator {
	return &Generator{llm: llm}
}

// Generate answers query from docs and history (oldest first). The model
// output is returned trimmed and otherwise unchecked.
func (g *Generator) Generate(ctx context.Context, query string, docs []Document, history []domain.Exchange) (string, error) {
	out, err := g.llm.Complete(ctx, BuildAnswerPrompt(query, docs, history))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// BuildAnswerPrompt renders the grounding prompt.
func BuildAnswerPrompt(query string, docs []Document, history []domain.Exchange) string {
	r := strings.NewReplacer(
		"{insufficient}", InsufficientInformation,
		"{chat_history}", renderHistory(history),
		"{context}", renderContext(docs),
		"{question}", query,
	)
	return r.Replace(answerTemplate)
}

func renderHistory(history []domain.Exchange) string {
	if len(history) == 0 {
		return NoHistory
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		lines = append(lines, "Human: "+h.Human+"\nAI: "+h.Bot)
	}
	return strings.Join(lines, "\n")
}

func renderContext(docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		page := d.Metadata.Page
		if page == "" {
			page = "?"
		}
		blocks = append(blocks, fmt.Sprintf("[%s | %s | page %s]\n%s",
			d.Metadata.Domain, d.Metadata.SourceFile, page, d.Content))
	}
	return strings.Join(blocks, "\n\n")
}
