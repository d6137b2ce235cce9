// Package chat implements the per-request ask pipeline and conversation
// queries on top of the rag components and the turn store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/rag"
)

// HistoryWindow is the number of previous turns given to the generator.
const HistoryWindow = 5

var (
	// ErrEmptyQuery is returned when the query is blank.
	ErrEmptyQuery = errors.New("query is required")
	// ErrInvalidConversationID is returned for malformed conversation ids.
	ErrInvalidConversationID = errors.New("invalid conversation id")
	// ErrConversationForbidden is returned when the conversation belongs to another user.
	ErrConversationForbidden = errors.New("conversation belongs to another user")
	// ErrNoUser is returned when no owning user is attached to the request.
	ErrNoUser = errors.New("missing user")
)

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Classifier maps a query to a domain label.
type Classifier interface {
	Classify(ctx context.Context, query string) (string, error)
}

// Retriever fetches scored documents for a domain.
type Retriever interface {
	Retrieve(ctx context.Context, query, domainLabel string, k int) ([]rag.ScoredDocument, error)
}

// Generator produces a grounded answer.
type Generator interface {
	Generate(ctx context.Context, query string, docs []rag.Document, history []domain.Exchange) (string, error)
}

// TurnStore persists and queries conversation turns.
type TurnStore interface {
	AppendTurn(ctx context.Context, turn *domain.Turn) error
	RecentTurns(ctx context.Context, userID int64, conversationID string, limit int) ([]domain.Turn, error)
	ConversationTurns(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error)
	ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error)
	ConversationOwnedByOther(ctx context.Context, conversationID string, userID int64) (bool, error)
}

// AskInput is one inbound question.
type AskInput struct {
	UserID         int64
	Query          string
	ConversationID string
	Domain         string
}

// AskResult is the composed response.
type AskResult struct {
	Domain         string `json:"domain"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
}

// Service drives the classify → retrieve → revalidate → generate → persist pipeline.
type Service struct {
	classifier Classifier
	retriever  Retriever
	generator  Generator
	store      TurnStore
	catalog    *domain.Catalog
	now        func() time.Time
	newID      func() string
}

// NewService creates a chat service.
func NewService(classifier Classifier, retriever Retriever, generator Generator, store TurnStore, catalog *domain.Catalog) *Service {
	return &Service{
		classifier: classifier,
		retriever:  retriever,
		generator:  generator,
		store:      store,
		catalog:    catalog,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Ask answers one question and records the turn. Nothing is persisted when
// any step before persistence fails.
func (s *Service) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	if in.UserID == 0 {
		return nil, ErrNoUser
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, ErrEmptyQuery
	}

	conversationID := in.ConversationID
	if conversationID == "" {
		conversationID = s.newID()
	} else {
		if !conversationIDPattern.MatchString(conversationID) {
			return nil, ErrInvalidConversationID
		}
		foreign, err := s.store.ConversationOwnedByOther(ctx, conversationID, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("check conversation owner: %w", err)
		}
		if foreign {
			return nil, ErrConversationForbidden
		}
	}

	explicit := domain.IsExplicit(in.Domain)
	intended := in.Domain
	if !explicit {
		label, err := s.classifier.Classify(ctx, in.Query)
		if err != nil {
			return nil, err
		}
		intended = label
	}

	scored, err := s.retriever.Retrieve(ctx, in.Query, intended, rag.DefaultTopK)
	if err != nil {
		return nil, err
	}
	logRetrieval(ctx, in.Query, intended, s.tagFor(intended), scored)

	docs := rag.Documents(scored)
	if explicit {
		docs = rag.Revalidate(docs, s.tagFor(in.Domain))
	}

	recent, err := s.store.RecentTurns(ctx, in.UserID, conversationID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	answer, err := s.generator.Generate(ctx, in.Query, docs, domain.Exchanges(recent))
	if err != nil {
		return nil, err
	}

	turn := &domain.Turn{
		ConversationID: conversationID,
		UserID:         in.UserID,
		HumanMessage:   in.Query,
		BotMessage:     answer,
		Domain:         intended,
		CreatedAt:      s.now(),
	}
	if err := s.store.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	return &AskResult{
		Domain:         intended,
		Answer:         answer,
		ConversationID: conversationID,
	}, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	if userID == 0 {
		return nil, ErrNoUser
	}
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// ListMessages returns the user's turns in a conversation, oldest first.
func (s *Service) ListMessages(ctx context.Context, userID int64, conversationID string) ([]domain.Turn, error) {
	if userID == 0 {
		return nil, ErrNoUser
	}
	turns, err := s.store.ConversationTurns(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return turns, nil
}

func (s *Service) tagFor(label string) string {
	tag, _ := s.catalog.Tag(label)
	return tag
}

func logRetrieval(ctx context.Context, query, domainLabel, tag string, docs []rag.ScoredDocument) {
	logger := slog.Default()
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	logger.DebugContext(ctx, "Retrieval completed",
		"query", query,
		"domain", domainLabel,
		"metadata_tag", tag,
		"documents", len(docs),
	)
	for i, d := range docs {
		snippet := strings.Join(strings.Fields(d.Content), " ")
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		logger.DebugContext(ctx, "Retrieved document",
			"rank", i+1,
			"score", d.Score,
			"domain", d.Metadata.Domain,
			"source_file", d.Metadata.SourceFile,
			"page", d.Metadata.Page,
			"snippet", snippet,
		)
	}
}
