package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/backend/localindex"
	weaviatestore "github.com/chaekko/chaekko/internal/backend/weaviate"
	"github.com/chaekko/chaekko/internal/breaker"
	"github.com/chaekko/chaekko/internal/budget"
	"github.com/chaekko/chaekko/internal/cache"
	"github.com/chaekko/chaekko/internal/config"
	"github.com/chaekko/chaekko/internal/embedding"
	"github.com/chaekko/chaekko/internal/fallback"
	"github.com/chaekko/chaekko/internal/grouping"
	"github.com/chaekko/chaekko/internal/orchestrator"
	"github.com/chaekko/chaekko/internal/plan"
	"github.com/chaekko/chaekko/internal/retrieval"
	"github.com/chaekko/chaekko/internal/telemetry"
)

// buildIndex creates the search backend named by the config. The local
// driver starts empty; use seedIndex to load materials into it.
func buildIndex(cfg *config.Config, logger *slog.Logger) (backend.Index, error) {
	switch cfg.Backend.Driver {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{
			Host:   cfg.Backend.Weaviate.Host,
			Scheme: cfg.Backend.Weaviate.Scheme,
		})
		if err != nil {
			return nil, fmt.Errorf("create weaviate client: %w", err)
		}
		return weaviatestore.New(client, weaviatestore.Config{
			Class: cfg.Backend.Weaviate.Class,
		}, logger), nil
	case config.BackendLocal:
		return localindex.New()
	default:
		return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}
}

// buildEmbedder creates the embedding provider, wrapped with the
// embedding cache when enabled.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) embedding.Provider {
	var provider embedding.Provider
	switch cfg.Embeddings.Provider {
	case config.ProviderOpenAI:
		provider = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:     cfg.Embeddings.APIKey(),
			BaseURL:    cfg.Embeddings.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		}, logger)
	default:
		provider = embedding.NewStaticProvider(cfg.Embeddings.Dimensions)
	}

	embedCache := cache.New[[]float32](cfg.Caches.Embedding.ToCache())
	return embedding.NewCachedProvider(provider, embedCache)
}

// buildOrchestrator wires the full pipeline from one loaded config.
func buildOrchestrator(cfg *config.Config, index backend.Index,
	embedder embedding.Provider, logger *slog.Logger) *orchestrator.Orchestrator {

	resolver := plan.NewResolver(plan.Defaults{
		TopK:        cfg.Search.DefaultTopK,
		RerankTopK:  cfg.Search.RerankTopK,
		FusionK:     cfg.Search.RRFConstant,
		PageSize:    cfg.Search.PageSize,
		MaxPageSize: cfg.Search.MaxPageSize,
		LexWeight:   cfg.Search.LexicalWeight,
		VecWeight:   cfg.Search.VectorWeight,
		Budget:      time.Duration(cfg.Budget.TotalMs) * time.Millisecond,
	})

	allocator := budget.New(budget.Config{
		LexicalShare: cfg.Budget.LexicalShare,
		VectorShare:  cfg.Budget.VectorShare,
		RerankShare:  cfg.Budget.RerankShare,
		MinStage:     time.Duration(cfg.Budget.MinStageMs) * time.Millisecond,
		Overhead:     time.Duration(cfg.Budget.OverheadMs) * time.Millisecond,
	})

	vectorBreaker := breaker.New("vector-backend",
		breaker.WithMaxFailures(cfg.Breaker.MaxFailures),
		breaker.WithCooldown(cfg.Breaker.Cooldown()))

	retrievers := []retrieval.Retriever{
		retrieval.NewLexical(index, retrieval.LexicalConfig{
			Fields: cfg.Search.LexicalFields,
		}, logger),
		retrieval.NewVector(index, embedder, vectorBreaker,
			cfg.Caches.VectorResult.ToCache(), logger),
	}

	grouper := grouping.New(grouping.Config{
		Enabled:        cfg.Grouping.Enabled,
		RecoverPenalty: cfg.Grouping.RecoverPenalty,
		SetPenalty:     cfg.Grouping.SetPenalty,
		SpecialPenalty: cfg.Grouping.SpecialPenalty,
		NoiseTokens:    cfg.Grouping.NoiseTokens,
		FillVariants:   cfg.Grouping.FillVariants,
	}, logger)

	return orchestrator.New(resolver, allocator, retrievers,
		fallback.NewEvaluator(logger), grouper, index,
		orchestrator.Config{
			Quality: orchestrator.QualityConfig{
				MinResults:  cfg.Quality.MinResults,
				MinTopScore: cfg.Quality.MinTopScore,
			},
			PageCache:   cfg.Caches.Page.ToCache(),
			DetailCache: cfg.Caches.Detail.ToCache(),
		},
		orchestrator.WithMetrics(telemetry.New()),
		orchestrator.WithLogger(logger))
}

// seedMaterial is one record in a seed file.
type seedMaterial struct {
	MaterialID   string `json:"materialId"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Publisher    string `json:"publisher"`
	PublishYear  int    `json:"publishYear"`
	EditionLabel string `json:"editionLabel"`
	Volume       string `json:"volume"`
	MaterialType string `json:"materialType"`
	CoverURL     string `json:"coverUrl"`
}

// seedIndex loads a JSON array of materials into a local index,
// embedding title and author for vector search.
func seedIndex(ctx context.Context, index backend.Index,
	embedder embedding.Provider, path string) (int, error) {

	local, ok := index.(*localindex.Index)
	if !ok {
		return 0, fmt.Errorf("seeding requires the local backend driver")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var materials []seedMaterial
	if err := json.Unmarshal(data, &materials); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	docs := make([]localindex.Doc, 0, len(materials))
	for _, m := range materials {
		if m.MaterialID == "" {
			continue
		}
		vec, err := embedder.Embed(ctx, strings.TrimSpace(m.Title+" "+m.Author))
		if err != nil {
			return 0, fmt.Errorf("embed material %s: %w", m.MaterialID, err)
		}
		docs = append(docs, localindex.Doc{
			ID: m.MaterialID,
			Fields: map[string]any{
				"materialId":   m.MaterialID,
				"title":        m.Title,
				"author":       m.Author,
				"publisher":    m.Publisher,
				"publishYear":  m.PublishYear,
				"editionLabel": m.EditionLabel,
				"volume":       m.Volume,
				"materialType": m.MaterialType,
				"coverUrl":     m.CoverURL,
			},
			SearchText: map[string]string{
				"title":  m.Title,
				"author": m.Author,
			},
			Vector: vec,
		})
	}
	if err := local.Add(docs...); err != nil {
		return 0, fmt.Errorf("index seed materials: %w", err)
	}
	return len(docs), nil
}
