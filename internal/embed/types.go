// Package embed generates vector embeddings for code chunks and
// queries. The Azure OpenAI provider is the production path; the null
// provider disables vector search while keeping the pipeline shape.
package embed

import "context"

const (
	// MaxCodeChars caps the text sent to the embedding model. Code
	// beyond this adds little signal and inflates token cost.
	MaxCodeChars = 6000

	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 16

	// MaxBatchSize bounds a single embedding request.
	MaxBatchSize = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedCode embeds a code chunk with optional file context
	// prepended, truncating to MaxCodeChars.
	EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName identifies the deployment or model.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// codeInput builds the text for EmbedCode: the file context header
// followed by the code, clamped to MaxCodeChars.
func codeInput(code, fileContext string) string {
	text := code
	if fileContext != "" {
		text = fileContext + "\n" + code
	}
	if len(text) > MaxCodeChars {
		text = text[:MaxCodeChars]
	}
	return text
}
