package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/graphstore/internal/platform/openai"
)

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type OpenAIProvider struct {
	client openai.Client
	dim    int
}

// NewOpenAIProvider wraps an embeddings client. dim may be zero for models
// with a known native dimension.
func NewOpenAIProvider(client openai.Client, dim int) (*OpenAIProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if dim <= 0 {
		dim = knownDimensions[strings.ToLower(client.EmbedModel())]
	}
	if dim <= 0 {
		return nil, fmt.Errorf("unknown dimension for embedding model %q; set EMBEDDING_DIMENSION", client.EmbedModel())
	}
	return &OpenAIProvider{client: client, dim: dim}, nil
}

func (p *OpenAIProvider) Name() string   { return "openai:" + p.client.EmbedModel() }
func (p *OpenAIProvider) Dimension() int { return p.dim }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return zeros(p.dim), nil
	}
	vecs, err := p.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("openai embed: want 1 vector got %d", len(vecs))
	}
	return vecs[0], nil
}
