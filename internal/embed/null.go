package embed

import "context"

// NullEmbedder returns no vectors. It backs keyword-only deployments
// where no embedding provider is configured: documents are indexed
// without content_vector and hybrid search degrades to semantic plus
// keyword fusion.
type NullEmbedder struct{}

var _ Embedder = NullEmbedder{}

// NewNullEmbedder creates a NullEmbedder.
func NewNullEmbedder() NullEmbedder { return NullEmbedder{} }

func (NullEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (NullEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (NullEmbedder) EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error) {
	return nil, nil
}

func (NullEmbedder) Dimensions() int                    { return 0 }
func (NullEmbedder) ModelName() string                  { return "none" }
func (NullEmbedder) Available(ctx context.Context) bool { return true }
func (NullEmbedder) Close() error                       { return nil }
