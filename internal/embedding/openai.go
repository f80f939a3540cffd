package embedding

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	chaekkoerrors "github.com/chaekko/chaekko/internal/errors"
)

// DefaultModel is used when no embedding model is configured.
const DefaultModel = "text-embedding-3-small"

// defaultDimensions matches text-embedding-3-small.
const defaultDimensions = 1536

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL set
// to a local endpoint pointed at any OpenAI-compatible server works
// unchanged.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIProvider embeds via the OpenAI embeddings API.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// NewOpenAIProvider creates the provider.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		p.logger.Warn("embedding request failed",
			slog.String("model", p.model),
			slog.String("error", err.Error()))
		return nil, chaekkoerrors.Wrap(chaekkoerrors.ErrCodeEmbeddingUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("embedding response empty for model %s", p.model), nil)
	}
	return resp.Data[0].Embedding, nil
}

// Dimensions implements Provider.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// ModelName implements Provider.
func (p *OpenAIProvider) ModelName() string { return p.model }
