package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kestrel-search/kestrel/internal/clip"
	"github.com/kestrel-search/kestrel/internal/config"
	"github.com/kestrel-search/kestrel/internal/embed"
	"github.com/kestrel-search/kestrel/internal/search"
	"github.com/kestrel-search/kestrel/internal/store"
	"github.com/kestrel-search/kestrel/internal/telemetry"
)

// runtime owns the wired stores, clients, and engine for one command
// invocation.
type runtime struct {
	cfg      config.Config
	engine   *search.Engine
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	meta     *store.SQLiteMetadataStore
	dense    *store.HNSWStore
	images   *store.HNSWStore
	lexical  *store.BleveLexicalIndex
	embedder embed.Embedder
	encoder  clip.Encoder
	reranker search.Reranker
}

func (rt *runtime) densePath() string  { return filepath.Join(rt.cfg.DataDir, "dense.hnsw") }
func (rt *runtime) imagesPath() string { return filepath.Join(rt.cfg.DataDir, "images.hnsw") }

// newRuntime opens every store and collaborator client and builds the engine.
func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger}

	meta, err := store.NewSQLiteMetadataStore(filepath.Join(cfg.DataDir, "meta.db"))
	if err != nil {
		return nil, err
	}
	rt.meta = meta

	if err := rt.openEmbedder(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openVectorStores(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	lexical, err := store.NewBleveLexicalIndex(filepath.Join(cfg.DataDir, "lexical.bleve"))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.lexical = lexical

	if err := rt.openReranker(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.metrics = telemetry.New()
	deps := search.Deps{
		Dense:      rt.dense,
		Images:     rt.images,
		Lexical:    rt.lexical,
		Metadata:   rt.meta,
		Embedder:   rt.embedder,
		CrossModal: rt.encoder,
		Reranker:   rt.reranker,
	}
	engine, err := search.NewEngine(deps, cfg.EngineConfig(),
		search.WithLogger(logger), search.WithMetrics(rt.metrics))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

func (rt *runtime) openEmbedder(ctx context.Context) error {
	ec := rt.cfg.Embedding
	var inner embed.Embedder
	switch ec.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	case "", "ollama":
		e, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       ec.Host,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			BatchSize:  ec.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("embedding provider: %w", err)
		}
		inner = e
	default:
		return fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}
	rt.embedder = embed.NewCachedEmbedder(inner, ec.CacheSize)
	return nil
}

func (rt *runtime) openVectorStores(ctx context.Context) error {
	dims, err := rt.storedDimensions(ctx, store.StateKeyDenseDimensions, rt.embedder.Dimensions())
	if err != nil {
		return err
	}
	dense, err := store.NewHNSWStore(store.DefaultHNSWConfig(dims))
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(rt.densePath()); statErr == nil {
		if err := dense.Load(rt.densePath()); err != nil {
			return fmt.Errorf("load dense index: %w", err)
		}
	}
	rt.dense = dense

	switch rt.cfg.Clip.Provider {
	case "", "off":
		return nil
	case "http":
		encoder, err := clip.NewHTTPEncoder(clip.HTTPConfig{
			Endpoint:   rt.cfg.Clip.Endpoint,
			Dimensions: rt.cfg.Clip.Dimensions,
		})
		if err != nil {
			return err
		}
		rt.encoder = encoder
	case "static":
		rt.encoder = clip.NewStaticEncoder(embed.NewStaticEmbedder())
	default:
		return fmt.Errorf("unknown clip provider %q", rt.cfg.Clip.Provider)
	}

	clipDims, err := rt.storedDimensions(ctx, store.StateKeyClipDimensions, rt.encoder.Dimensions())
	if err != nil {
		return err
	}
	if clipDims <= 0 {
		clipDims = embed.StaticDimensions
	}
	images, err := store.NewHNSWStore(store.DefaultHNSWConfig(clipDims))
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(rt.imagesPath()); statErr == nil {
		if err := images.Load(rt.imagesPath()); err != nil {
			return fmt.Errorf("load image index: %w", err)
		}
	}
	rt.images = images
	return nil
}

// storedDimensions prefers the dimension recorded when the index was built,
// falling back to what the live collaborator reports.
func (rt *runtime) storedDimensions(ctx context.Context, key string, fallback int) (int, error) {
	val, err := rt.meta.GetState(ctx, key)
	if err != nil {
		return 0, err
	}
	if val == "" {
		return fallback, nil
	}
	dims, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt state %s=%q: %w", key, val, err)
	}
	return dims, nil
}

func (rt *runtime) openReranker() error {
	switch rt.cfg.Reranker.Provider {
	case "", "off":
		return nil
	case "http":
		r, err := search.NewHTTPReranker(search.HTTPRerankerConfig{
			Endpoint: rt.cfg.Reranker.Endpoint,
			Model:    rt.cfg.Reranker.Model,
		})
		if err != nil {
			return err
		}
		rt.reranker = r
		return nil
	default:
		return fmt.Errorf("unknown reranker provider %q", rt.cfg.Reranker.Provider)
	}
}

// Close releases everything the runtime opened, in reverse order.
func (rt *runtime) Close() {
	if rt.reranker != nil {
		_ = rt.reranker.Close()
	}
	if rt.encoder != nil {
		_ = rt.encoder.Close()
	}
	if rt.embedder != nil {
		_ = rt.embedder.Close()
	}
	if rt.lexical != nil {
		_ = rt.lexical.Close()
	}
	if rt.images != nil {
		_ = rt.images.Close()
	}
	if rt.dense != nil {
		_ = rt.dense.Close()
	}
	if rt.meta != nil {
		_ = rt.meta.Close()
	}
}
