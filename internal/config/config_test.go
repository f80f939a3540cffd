package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	chaekkoerrors "github.com/chaekko/chaekko/internal/errors"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.DefaultTopK != 50 || cfg.Backend.Driver != BackendLocal {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaekko.yaml")
	data := `
version: 1
search:
  default_top_k: 30
  rrf_constant: 40
backend:
  driver: weaviate
  weaviate:
    host: weaviate.internal:8080
caches:
  page:
    enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Search.DefaultTopK != 30 {
		t.Errorf("DefaultTopK = %d, want 30", cfg.Search.DefaultTopK)
	}
	if cfg.Search.RRFConstant != 40 {
		t.Errorf("RRFConstant = %d, want 40", cfg.Search.RRFConstant)
	}
	if cfg.Backend.Driver != BackendWeaviate || cfg.Backend.Weaviate.Host != "weaviate.internal:8080" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Weaviate.Class != "Material" {
		t.Errorf("unset fields should keep defaults, class = %q", cfg.Backend.Weaviate.Class)
	}
	if cfg.Caches.Page.Enabled {
		t.Error("page cache should be disabled by file")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *chaekkoerrors.ChaekkoError
	if !errors.As(err, &ce) || ce.Code != chaekkoerrors.ErrCodeConfigNotFound {
		t.Errorf("err = %v, want %s", err, chaekkoerrors.ErrCodeConfigNotFound)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaekko.yaml")
	if err := os.WriteFile(path, []byte("search: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var ce *chaekkoerrors.ChaekkoError
	if !errors.As(err, &ce) || ce.Code != chaekkoerrors.ErrCodeConfigInvalid {
		t.Errorf("err = %v, want %s", err, chaekkoerrors.ErrCodeConfigInvalid)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := map[string]func(*Config){
		"bad driver":      func(c *Config) { c.Backend.Driver = "solr" },
		"bad provider":    func(c *Config) { c.Embeddings.Provider = "cohere" },
		"zero top_k":      func(c *Config) { c.Search.DefaultTopK = 0 },
		"page size order": func(c *Config) { c.Search.MaxPageSize = 5 },
		"zero budget":     func(c *Config) { c.Budget.TotalMs = 0 },
		"shares over 1":   func(c *Config) { c.Budget.LexicalShare = 0.9 },
		"zero failures":   func(c *Config) { c.Breaker.MaxFailures = 0 },
		"bad version":     func(c *Config) { c.Version = 2 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestCacheConfig_ToCache(t *testing.T) {
	cc := CacheConfig{Enabled: true, TTLSeconds: 300, MaxEntries: 100}
	rc := cc.ToCache()
	if rc.TTL != 5*time.Minute || !rc.Enabled || rc.MaxEntries != 100 {
		t.Errorf("ToCache() = %+v", rc)
	}
}

func TestBreakerConfig_Cooldown(t *testing.T) {
	bc := BreakerConfig{CooldownMs: 30000}
	if bc.Cooldown() != 30*time.Second {
		t.Errorf("Cooldown() = %v", bc.Cooldown())
	}
}

func TestEmbeddingsConfig_APIKey(t *testing.T) {
	t.Setenv("CHAEKKO_TEST_KEY", "sk-test")
	ec := EmbeddingsConfig{APIKeyEnv: "CHAEKKO_TEST_KEY"}
	if ec.APIKey() != "sk-test" {
		t.Errorf("APIKey() = %q", ec.APIKey())
	}
	if (EmbeddingsConfig{}).APIKey() != "" {
		t.Error("empty env name should yield empty key")
	}
}
