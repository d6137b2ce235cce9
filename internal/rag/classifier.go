package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognivyu/cognivyu/internal/domain"
)

// Classifier maps a free-text query to a domain label with one completion call.
type Classifier struct {
	llm     Completer
	catalog *domain.Catalog
}

// NewClassifier creates a classifier offering the catalog's labels.
func NewClassifier(llm Completer, catalog *domain.Catalog) *Classifier {
	return &Classifier{llm: llm, catalog: catalog}
}

// Classify returns the model's answer trimmed of surrounding whitespace.
// The answer is not checked against the catalog; an unknown label simply
// retrieves nothing downstream.
func (c *Classifier) Classify(ctx context.Context, query string) (string, error) {
	out, err := c.llm.Complete(ctx, c.prompt(query))
	if err != nil {
		return "", fmt.Errorf("classify domain: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Classifier) prompt(query string) string {
	var b strings.Builder
	b.WriteString("Classify the following question into ONE of the domains listed below.\n")
	b.WriteString("Respond with ONLY the domain name, exactly as it appears in the list. ")
	b.WriteString("Do not add numbers, punctuation, or any other text.\n\n")
	b.WriteString("Domains:\n")
	for _, label := range c.catalog.Labels() {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nQuestion: %q\n\nDomain:", query)
	return b.String()
}
