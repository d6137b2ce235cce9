package rag

import (
	"context"
	"fmt"

	"github.com/cognivyu/cognivyu/internal/domain"
)

// Retriever fetches documents for a query, scoped to one domain.
type Retriever struct {
	searcher Searcher
	catalog  *domain.Catalog
}

// NewRetriever creates a retriever over searcher.
func NewRetriever(searcher Searcher, catalog *domain.Catalog) *Retriever {
	return &Retriever{searcher: searcher, catalog: catalog}
}

// Retrieve returns at most k scored documents tagged with the domain's
// metadata tag. A domain without a tag yields no documents and no backend call.
func (r *Retriever) Retrieve(ctx context.Context, query, domainLabel string, k int) ([]ScoredDocument, error) {
	tag, ok := r.catalog.Tag(domainLabel)
	if !ok {
		return nil, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}
	docs, err := r.searcher.Search(ctx, query, k, tag)
	if err != nil {
		return nil, fmt.Errorf("similarity search (tag=%s): %w", tag, err)
	}
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// Revalidate keeps only documents whose metadata domain equals tag.
// An empty tag keeps nothing.
func Revalidate(docs []Document, tag string) []Document {
	out := make([]Document, 0, len(docs))
	if tag == "" {
		return out
	}
	for _, d := range docs {
		if d.Metadata.Domain == tag {
			out = append(out, d)
		}
	}
	return out
}
