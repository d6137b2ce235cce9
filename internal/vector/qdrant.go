// Package vector implements filtered similarity search over a Qdrant collection.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/cognivyu/cognivyu/internal/rag"
)

// Default payload layout, matching LangChain-style ingestion.
const (
	DefaultContentKey  = "page_content"
	DefaultMetadataKey = "metadata"
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// pointQuerier is the subset of *qdrant.Client used for search.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// Config describes the Qdrant connection and payload layout.
type Config struct {
	Host        string
	Port        int
	APIKey      string
	UseTLS      bool
	Collection  string
	ContentKey  string
	MetadataKey string
}

// Store runs similarity searches restricted by metadata domain.
type Store struct {
	client      *qdrant.Client
	querier     pointQuerier
	embedder    Embedder
	collection  string
	contentKey  string
	metadataKey string
}

var _ rag.Searcher = (*Store)(nil)

// NewStore connects to Qdrant.
func NewStore(cfg Config, embedder Embedder) (*Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	s := newStore(client, embedder, cfg)
	s.client = client
	return s, nil
}

func newStore(q pointQuerier, embedder Embedder, cfg Config) *Store {
	contentKey := cfg.ContentKey
	if contentKey == "" {
		contentKey = DefaultContentKey
	}
	return &Store{
		querier:     q,
		embedder:    embedder,
		collection:  cfg.Collection,
		contentKey:  contentKey,
		metadataKey: cfg.MetadataKey,
	}
}

// Search embeds query and returns up to k points whose metadata domain equals domainTag.
func (s *Store) Search(ctx context.Context, query string, k int, domainTag string) ([]rag.ScoredDocument, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := s.querier.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(s.domainKey(), domainTag)},
		},
		Limit:       qdrant.PtrOf(uint64(k)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	out := make([]rag.ScoredDocument, 0, len(points))
	for _, p := range points {
		out = append(out, rag.ScoredDocument{
			Document: documentFromPayload(p.GetPayload(), s.contentKey, s.metadataKey),
			Score:    float64(p.GetScore()),
		})
	}
	return out, nil
}

// HealthCheck reports whether Qdrant is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return errors.New("qdrant client not connected")
	}
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) domainKey() string {
	if s.metadataKey == "" {
		return "domain"
	}
	return s.metadataKey + ".domain"
}

// documentFromPayload reads content and metadata from a point payload. When
// metadataKey is empty the metadata fields are read from the top level.
func documentFromPayload(payload map[string]*qdrant.Value, contentKey, metadataKey string) rag.Document {
	meta := payload
	if metadataKey != "" {
		if nested := payload[metadataKey].GetStructValue(); nested != nil {
			meta = nested.GetFields()
		} else {
			meta = nil
		}
	}
	return rag.Document{
		Content: valueString(payload[contentKey]),
		Metadata: rag.Metadata{
			Domain:     valueString(meta["domain"]),
			SourceFile: valueString(meta["source_file"]),
			Page:       valueString(meta["page"]),
		},
	}
}

func valueString(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(kind.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return ""
	}
}
