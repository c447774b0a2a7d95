package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

const (
	// azureEmbeddingsAPIVersion is the Azure OpenAI data-plane version
	// for the embeddings endpoint.
	azureEmbeddingsAPIVersion = "2024-02-01"

	azureRequestTimeout = 60 * time.Second
	azureMaxRetries     = 3
)

// AzureOpenAIEmbedder generates embeddings through an Azure OpenAI
// deployment.
type AzureOpenAIEmbedder struct {
	client     *http.Client
	transport  *http.Transport
	endpoint   string
	apiKey     string
	deployment string
	dims       int
}

var _ Embedder = (*AzureOpenAIEmbedder)(nil)

// NewAzureOpenAIEmbedder creates an embedder from embedding config.
func NewAzureOpenAIEmbedder(cfg config.EmbeddingConfig) (*AzureOpenAIEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, kerrors.ConfigError("embedding endpoint is required for the azure_openai provider", nil)
	}
	if cfg.Deployment == "" {
		return nil, kerrors.ConfigError("embedding deployment is required for the azure_openai provider", nil)
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     30 * time.Second,
	}
	return &AzureOpenAIEmbedder{
		client:     &http.Client{Transport: transport, Timeout: azureRequestTimeout},
		transport:  transport,
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		dims:       cfg.Dimensions,
	}, nil
}

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for one text.
func (e *AzureOpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, preserving input order.
func (e *AzureOpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, kerrors.ValidationError(fmt.Sprintf("embedding batch of %d exceeds maximum %d", len(texts), MaxBatchSize), nil)
	}

	payload, err := json.Marshal(embeddingsRequest{Input: texts, Dimensions: e.dims})
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.ErrCodeInternal, "encoding embeddings request")
	}

	var resp embeddingsResponse
	operation := func() error {
		return e.doRequest(ctx, payload, &resp)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), azureMaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, kerrors.New(kerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, kerrors.New(kerrors.ErrCodeEmbeddingFailed, "embedding response index out of range", nil)
		}
		out[item.Index] = item.Embedding
	}
	for i, vec := range out {
		if e.dims > 0 && len(vec) != e.dims {
			return nil, kerrors.New(kerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding %d has %d dimensions, expected %d", i, len(vec), e.dims), nil)
		}
	}
	return out, nil
}

func (e *AzureOpenAIEmbedder) doRequest(ctx context.Context, payload []byte, out *embeddingsResponse) error {
	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.endpoint, e.deployment, azureEmbeddingsAPIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(kerrors.Wrap(err, kerrors.ErrCodeInternal, "building embeddings request"))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(kerrors.Wrap(err, kerrors.ErrCodeTimeout, "embeddings request canceled"))
		}
		return kerrors.Wrap(err, kerrors.ErrCodeEmbeddingFailed, "embeddings request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return kerrors.New(kerrors.ErrCodeRateLimited,
			fmt.Sprintf("embeddings endpoint returned status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return backoff.Permanent(kerrors.New(kerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embeddings endpoint returned status %d", resp.StatusCode), nil))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(kerrors.Wrap(err, kerrors.ErrCodeEmbeddingFailed, "decoding embeddings response"))
	}
	return nil
}

// EmbedCode embeds code with file context, truncated to MaxCodeChars.
func (e *AzureOpenAIEmbedder) EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error) {
	return e.Embed(ctx, codeInput(code, fileContext))
}

// Dimensions returns the configured embedding dimension.
func (e *AzureOpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName returns the deployment name.
func (e *AzureOpenAIEmbedder) ModelName() string { return e.deployment }

// Available probes the deployment with a minimal request.
func (e *AzureOpenAIEmbedder) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := e.Embed(probeCtx, "ping")
	return err == nil
}

// Close releases idle connections.
func (e *AzureOpenAIEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
