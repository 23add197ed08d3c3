package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed retriever.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantRetriever implements Retriever backed by a Qdrant instance with
// cosine distance. It is the index-backed alternative to StoreRetriever
// for corpora large enough that a linear scan per query no longer holds up.
// Both satisfy the same Retrieve contract, so the pipeline is unchanged.
type QdrantRetriever struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this retriever.
	cfg *QdrantConfig
}

// NewQdrantRetriever creates a QdrantRetriever, ensuring the target
// collection exists (creating it with cosine distance if necessary).
func NewQdrantRetriever(ctx context.Context, cfg *QdrantConfig) (*QdrantRetriever, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	r := &QdrantRetriever{client: client, cfg: cfg}
	if err := r.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (r *QdrantRetriever) ensureCollection(ctx context.Context) error {
	exists, err := r.client.CollectionExists(ctx, r.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: r.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     r.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", r.cfg.Collection, err)
	}

	return nil
}

// Upsert stores a batch of documents with their pre-computed embeddings.
// Point IDs are derived from the document IDs, so re-ingesting the same
// content overwrites in place rather than duplicating.
func (r *QdrantRetriever) Upsert(ctx context.Context, docs []Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != int(r.cfg.VectorSize) {
			return fmt.Errorf("qdrant: embedding dimension %d does not match collection dimension %d: %w",
				len(doc.Embedding), r.cfg.VectorSize, ErrInvalidInput)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"content": doc.Content,
				"source":  doc.Source,
			}),
		})
	}

	_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Retrieve performs a server-side cosine similarity search. The score
// threshold is pushed down to Qdrant so filtering happens before the
// top-k cut, matching the ranker's threshold-then-truncate behavior.
func (r *QdrantRetriever) Retrieve(ctx context.Context, queryEmbedding []float32, k int, minScore float32) ([]ScoredMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("qdrant: k must be positive, got %d: %w", k, ErrInvalidInput)
	}

	limit := uint64(k)
	query := &qdrant.QueryPoints{
		CollectionName: r.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > -1 {
		threshold := minScore
		query.ScoreThreshold = &threshold
	}

	results, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]ScoredMatch, 0, len(results))
	for _, res := range results {
		match := ScoredMatch{
			Document: Document{ID: res.Id.GetUuid()},
			Score:    res.Score,
		}
		if p := res.Payload; p != nil {
			if v, ok := p["content"]; ok {
				match.Document.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				match.Document.Source = v.GetStringValue()
			}
		}
		matches = append(matches, match)
	}

	return matches, nil
}

// Client exposes the underlying Qdrant client for readiness probes.
func (r *QdrantRetriever) Client() *qdrant.Client {
	return r.client
}

// Close closes the underlying Qdrant gRPC connection.
func (r *QdrantRetriever) Close() error {
	return r.client.Close()
}
