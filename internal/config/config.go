// Package config loads and validates the chaekko service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaekko/chaekko/internal/cache"
	chaekkoerrors "github.com/chaekko/chaekko/internal/errors"
	"github.com/chaekko/chaekko/internal/logging"
)

// Backend drivers.
const (
	BackendWeaviate = "weaviate"
	BackendLocal    = "local"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderStatic = "static"
)

// Config is the complete service configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Search     SearchConfig     `yaml:"search"`
	Budget     BudgetConfig     `yaml:"budget"`
	Caches     CachesConfig     `yaml:"caches"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Backend    BackendConfig    `yaml:"backend"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Grouping   GroupingConfig   `yaml:"grouping"`
	Quality    QualityConfig    `yaml:"quality"`
	Logging    logging.Config   `yaml:"logging"`
}

// SearchConfig holds retrieval and fusion defaults.
type SearchConfig struct {
	// DefaultTopK is the per-stage candidate count when the payload
	// does not override it.
	DefaultTopK int `yaml:"default_top_k"`
	// RerankTopK caps the rerank window.
	RerankTopK int `yaml:"rerank_top_k"`
	// PageSize is the default result page size.
	PageSize int `yaml:"page_size"`
	// MaxPageSize clamps caller-supplied sizes.
	MaxPageSize int `yaml:"max_page_size"`
	// RRFConstant is the reciprocal-rank-fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant"`
	// LexicalWeight and VectorWeight parameterize weighted fusion.
	LexicalWeight float64 `yaml:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight"`
	// LexicalFields are the default keyword-search fields.
	LexicalFields []string `yaml:"lexical_fields"`
}

// BudgetConfig holds the time-budget split. All values in milliseconds
// except the shares.
type BudgetConfig struct {
	TotalMs      int     `yaml:"total_ms"`
	LexicalShare float64 `yaml:"lexical_share"`
	VectorShare  float64 `yaml:"vector_share"`
	RerankShare  float64 `yaml:"rerank_share"`
	MinStageMs   int     `yaml:"min_stage_ms"`
	OverheadMs   int     `yaml:"overhead_ms"`
}

// CacheConfig configures one TTL cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttl_seconds"`
	MaxEntries int  `yaml:"max_entries"`
}

// ToCache converts to the runtime cache configuration.
func (c CacheConfig) ToCache() cache.Config {
	return cache.Config{
		Enabled:    c.Enabled,
		TTL:        time.Duration(c.TTLSeconds) * time.Second,
		MaxEntries: c.MaxEntries,
	}
}

// CachesConfig holds the four pipeline caches.
type CachesConfig struct {
	Embedding    CacheConfig `yaml:"embedding"`
	VectorResult CacheConfig `yaml:"vector_result"`
	Page         CacheConfig `yaml:"page"`
	Detail       CacheConfig `yaml:"detail"`
}

// BreakerConfig configures the vector stage circuit breaker.
type BreakerConfig struct {
	MaxFailures int `yaml:"max_failures"`
	CooldownMs  int `yaml:"cooldown_ms"`
}

// Cooldown returns the cooldown as a duration.
func (c BreakerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// BackendConfig selects and configures the search backend.
type BackendConfig struct {
	Driver   string         `yaml:"driver"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
}

// WeaviateConfig configures the weaviate driver.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	Class  string `yaml:"class"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	// Keys never live in the config file itself.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the key from the configured environment variable.
func (c EmbeddingsConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// GroupingConfig configures edition grouping.
type GroupingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	RecoverPenalty float64 `yaml:"recover_penalty"`
	SetPenalty     float64 `yaml:"set_penalty"`
	SpecialPenalty float64 `yaml:"special_penalty"`
	// NoiseTokens are edition words stripped from titles when building
	// the group identity key. Empty means the built-in marker terms.
	NoiseTokens  []string `yaml:"noise_tokens"`
	FillVariants bool     `yaml:"fill_variants"`
}

// QualityConfig configures the low-result gate.
type QualityConfig struct {
	MinResults  int     `yaml:"min_results"`
	MinTopScore float64 `yaml:"min_top_score"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			DefaultTopK:   50,
			RerankTopK:    20,
			PageSize:      20,
			MaxPageSize:   100,
			RRFConstant:   60,
			LexicalWeight: 0.5,
			VectorWeight:  0.5,
			LexicalFields: []string{"title", "author"},
		},
		Budget: BudgetConfig{
			TotalMs:      800,
			LexicalShare: 0.5,
			VectorShare:  0.3,
			RerankShare:  0.2,
			MinStageMs:   20,
			OverheadMs:   50,
		},
		Caches: CachesConfig{
			Embedding:    CacheConfig{Enabled: true, TTLSeconds: 3600, MaxEntries: 5000},
			VectorResult: CacheConfig{Enabled: true, TTLSeconds: 300, MaxEntries: 2000},
			Page:         CacheConfig{Enabled: true, TTLSeconds: 60, MaxEntries: 1000},
			Detail:       CacheConfig{Enabled: true, TTLSeconds: 600, MaxEntries: 10000},
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			CooldownMs:  30000,
		},
		Backend: BackendConfig{
			Driver: BackendLocal,
			Weaviate: WeaviateConfig{
				Host:   "localhost:8080",
				Scheme: "http",
				Class:  "Material",
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:   ProviderStatic,
			Model:      "text-embedding-3-small",
			Dimensions: 64,
			APIKeyEnv:  "OPENAI_API_KEY",
		},
		Grouping: GroupingConfig{
			Enabled:        true,
			RecoverPenalty: 0.90,
			SetPenalty:     0.85,
			SpecialPenalty: 0.90,
			FillVariants:   false,
		},
		Quality: QualityConfig{
			MinResults:  3,
			MinTopScore: 0.02,
		},
		Logging: logging.Config{
			Level:         "info",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path
// returns the defaults unchanged; an unreadable or invalid file errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("config file unreadable: %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, chaekkoerrors.New(chaekkoerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("config file malformed: %s", path), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return configErr("unsupported config version %d", c.Version)
	}
	switch c.Backend.Driver {
	case BackendWeaviate, BackendLocal:
	default:
		return configErr("unknown backend driver %q", c.Backend.Driver)
	}
	switch c.Embeddings.Provider {
	case ProviderOpenAI, ProviderStatic:
	default:
		return configErr("unknown embedding provider %q", c.Embeddings.Provider)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.PageSize <= 0 {
		return configErr("search top_k and page_size must be positive")
	}
	if c.Search.MaxPageSize < c.Search.PageSize {
		return configErr("max_page_size %d below page_size %d",
			c.Search.MaxPageSize, c.Search.PageSize)
	}
	if c.Budget.TotalMs <= 0 {
		return configErr("budget total_ms must be positive")
	}
	shares := c.Budget.LexicalShare + c.Budget.VectorShare + c.Budget.RerankShare
	if shares <= 0 || shares > 1.001 {
		return configErr("budget shares sum to %g, want (0, 1]", shares)
	}
	if c.Breaker.MaxFailures <= 0 || c.Breaker.CooldownMs <= 0 {
		return configErr("breaker max_failures and cooldown_ms must be positive")
	}
	return nil
}

func configErr(format string, args ...any) error {
	return chaekkoerrors.New(chaekkoerrors.ErrCodeConfigInvalid,
		fmt.Sprintf(format, args...), nil)
}
