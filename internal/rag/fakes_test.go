package rag

import (
	"context"
	"sync"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type searchCall struct {
	query string
	k     int
	tag   string
}

type fakeSearcher struct {
	docs  []ScoredDocument
	err   error
	calls []searchCall
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int, tag string) ([]ScoredDocument, error) {
	f.calls = append(f.calls, searchCall{query: query, k: k, tag: tag})
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func doc(tag, source, page, content string) Document {
	return Document{
		Content:  content,
		Metadata: Metadata{Domain: tag, SourceFile: source, Page: page},
	}
}
