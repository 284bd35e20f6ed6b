// Package config loads service configuration from YAML with environment
// overrides. Every fusion threshold, recall bound, and weight is a tunable
// with the engine defaults filled in.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrel-search/kestrel/internal/search"
)

// Config is the top-level service configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Clip      ClipConfig      `yaml:"clip"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// EmbeddingConfig selects and configures the text embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // ollama or static
	Host       string `yaml:"host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// ClipConfig configures the cross-modal encoder. Provider "off" disables the
// image track.
type ClipConfig struct {
	Provider   string `yaml:"provider"` // http, static, or off
	Endpoint   string `yaml:"endpoint"`
	Dimensions int    `yaml:"dimensions"`
}

// RerankerConfig configures the second-pass relevance model. Provider "off"
// leaves the rerank signal absent.
type RerankerConfig struct {
	Provider string `yaml:"provider"` // http or off
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// SearchConfig overrides engine tunables. Zero values keep the defaults.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	MinResults  int `yaml:"min_results"`

	Text  TrackConfig `yaml:"text"`
	Image TrackConfig `yaml:"image"`

	DenseRecall   RecallBounds `yaml:"dense_recall"`
	LexicalRecall RecallBounds `yaml:"lexical_recall"`
	RerankInput   RecallBounds `yaml:"rerank_input"`

	MaxKeywordPrompts int `yaml:"max_keyword_prompts"`
}

// TrackConfig overrides one fusion track's weights and gates.
type TrackConfig struct {
	LexicalWeight float64 `yaml:"lexical_weight"`
	DenseWeight   float64 `yaml:"dense_weight"`
	RerankWeight  float64 `yaml:"rerank_weight"`
	ClipWeight    float64 `yaml:"clip_weight"`

	MinComponent float64 `yaml:"min_component"`
	MinFinal     float64 `yaml:"min_final"`
	KeepFactor   float64 `yaml:"keep_factor"`
}

// RecallBounds overrides one recall family's sizing.
type RecallBounds struct {
	Multiplier int `yaml:"multiplier"`
	Floor      int `yaml:"floor"`
	Ceil       int `yaml:"ceil"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogLevel: "info",
		DataDir:  filepath.Join(home, ".kestrel"),
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
		},
		Clip: ClipConfig{
			Provider: "off",
		},
		Reranker: RerankerConfig{
			Provider: "off",
		},
	}
}

// Load reads the config file at path (optional, defaults apply when empty or
// missing) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("KESTREL_LOG_LEVEL", &cfg.LogLevel)
	setString("KESTREL_DATA_DIR", &cfg.DataDir)
	setString("KESTREL_ADDR", &cfg.Server.Addr)
	setString("KESTREL_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	setString("KESTREL_OLLAMA_HOST", &cfg.Embedding.Host)
	setString("KESTREL_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("KESTREL_CLIP_PROVIDER", &cfg.Clip.Provider)
	setString("KESTREL_CLIP_ENDPOINT", &cfg.Clip.Endpoint)
	setString("KESTREL_RERANKER_PROVIDER", &cfg.Reranker.Provider)
	setString("KESTREL_RERANKER_ENDPOINT", &cfg.Reranker.Endpoint)
}

// EngineConfig maps the override section onto the engine defaults. Only
// non-zero fields replace a default.
func (c Config) EngineConfig() search.Config {
	out := search.DefaultConfig()

	if c.Search.DefaultTopK > 0 {
		out.DefaultTopK = c.Search.DefaultTopK
	}
	if c.Search.MaxTopK > 0 {
		out.MaxTopK = c.Search.MaxTopK
	}
	if c.Search.MinResults > 0 {
		out.MinResults = c.Search.MinResults
	}
	if c.Search.MaxKeywordPrompts > 0 {
		out.MaxKeywordPrompts = c.Search.MaxKeywordPrompts
	}

	applyTrack(&out.Text, c.Search.Text)
	applyTrack(&out.Image, c.Search.Image)
	applyBounds(&out.DenseRecall, c.Search.DenseRecall)
	applyBounds(&out.LexicalRecall, c.Search.LexicalRecall)
	applyBounds(&out.RerankInput, c.Search.RerankInput)
	return out
}

func applyTrack(dst *search.TrackConfig, src TrackConfig) {
	if src.LexicalWeight > 0 {
		dst.Weights.Lexical = src.LexicalWeight
	}
	if src.DenseWeight > 0 {
		dst.Weights.Dense = src.DenseWeight
	}
	if src.RerankWeight > 0 {
		dst.Weights.Rerank = src.RerankWeight
	}
	if src.ClipWeight > 0 {
		dst.Weights.Clip = src.ClipWeight
	}
	if src.MinComponent > 0 {
		dst.MinComponent = src.MinComponent
	}
	if src.MinFinal > 0 {
		dst.MinFinal = src.MinFinal
	}
	if src.KeepFactor > 0 {
		dst.KeepFactor = src.KeepFactor
	}
}

func applyBounds(dst *search.RecallBounds, src RecallBounds) {
	if src.Multiplier > 0 {
		dst.Multiplier = src.Multiplier
	}
	if src.Floor > 0 {
		dst.Floor = src.Floor
	}
	if src.Ceil > 0 {
		dst.Ceil = src.Ceil
	}
}
