// Package rag implements the retrieval-augmented answer pipeline pieces:
// domain classification, filtered retrieval, revalidation and grounded
// answer generation.
package rag

import "context"

// DefaultTopK is the number of documents requested from the vector backend.
const DefaultTopK = 4

// Completer issues a single-turn text completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Searcher runs a similarity search restricted to documents whose metadata
// domain equals domainTag. Results keep the backend's ordering.
type Searcher interface {
	Search(ctx context.Context, query string, k int, domainTag string) ([]ScoredDocument, error)
}

// Metadata is the indexed metadata stored with each document.
type Metadata struct {
	Domain     string `json:"domain"`
	SourceFile string `json:"source_file"`
	Page       string `json:"page"`
}

// Document is a retrieved chunk of source material.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// ScoredDocument is a Document with the backend's relevance score.
type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Documents drops scores, preserving order.
func Documents(scored []ScoredDocument) []Document {
	out := make([]Document, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Document)
	}
	return out
}
