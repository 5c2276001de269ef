// Package vector defines the pluggable vector-store interface the
// memory tool's similarity search is built on, plus a registry of
// named backends (embedded chromem-go by default, Qdrant/Pinecone/
// Weaviate/Milvus/Chroma when configured). Grounded on the
// pkg/databases multi-provider registry, generalized from RAG document
// chunks to the Memory entity's agent-scoped embeddings.
package vector

import "context"

// Result is one nearest-neighbor hit from a similarity search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider is the interface every vector backend implements. Vectors
// arrive pre-computed (pkg/embedder does the embedding call), so
// Upsert/Search always take a []float32 directly rather than text.
type Provider interface {
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection string, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error
	DeleteCollection(ctx context.Context, collection string) error
	Name() string
	Close() error
}

// NilProvider is a no-op Provider used when memory is disabled for an
// agent, so the memory tool can always call into a Provider without a
// nil check at every call site.
type NilProvider struct{}

func (NilProvider) Upsert(context.Context, string, string, []float32, map[string]any) error {
	return nil
}
func (NilProvider) Search(context.Context, string, []float32, int) ([]Result, error) { return nil, nil }
func (NilProvider) SearchWithFilter(context.Context, string, []float32, int, map[string]any) ([]Result, error) {
	return nil, nil
}
func (NilProvider) Delete(context.Context, string, string) error                 { return nil }
func (NilProvider) DeleteByFilter(context.Context, string, map[string]any) error  { return nil }
func (NilProvider) CreateCollection(context.Context, string, int) error          { return nil }
func (NilProvider) DeleteCollection(context.Context, string) error               { return nil }
func (NilProvider) Name() string                                                 { return "nil" }
func (NilProvider) Close() error                                                 { return nil }
