package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/store"
)

// loadRecord is one pre-chunked corpus entry. Chunking and OCR happen
// upstream; this command only indexes what it is given.
type loadRecord struct {
	ID         string `json:"id"`
	DocID      string `json:"document_id"`
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	ContentID  string `json:"content_id"`
	Content    string `json:"content"`

	// Image entries carry a URI and caption; the caption is embedded into
	// the cross-modal space.
	ImageURI string `json:"image_uri,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

var loadCmd = &cobra.Command{
	Use:   "load <records.jsonl>",
	Short: "Index pre-chunked corpus records from a JSONL file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		chunks, images, err := readRecords(args[0])
		if err != nil {
			return err
		}
		logger.Info("loading records", "chunks", len(chunks), "images", len(images))

		ctx := cmd.Context()
		if err := rt.loadChunks(ctx, chunks); err != nil {
			return err
		}
		if err := rt.loadImages(ctx, images); err != nil {
			return err
		}

		if err := rt.dense.Save(rt.densePath()); err != nil {
			return fmt.Errorf("save dense index: %w", err)
		}
		if rt.images != nil && len(images) > 0 {
			if err := rt.images.Save(rt.imagesPath()); err != nil {
				return fmt.Errorf("save image index: %w", err)
			}
		}
		logger.Info("load complete")
		return nil
	},
}

func readRecords(path string) (chunks, images []loadRecord, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec loadRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ImageURI != "" {
			images = append(images, rec)
		} else {
			chunks = append(chunks, rec)
		}
	}
	return chunks, images, scanner.Err()
}

func (rt *runtime) loadChunks(ctx context.Context, records []loadRecord) error {
	if len(records) == 0 {
		return nil
	}

	contents := make([]string, len(records))
	for i, r := range records {
		contents[i] = r.Content
	}
	vecs, err := rt.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	nextID := uint64(rt.dense.Count())
	ids := make([]uint64, len(records))
	chunks := make([]*store.Chunk, len(records))
	docs := make([]*store.Document, len(records))
	for i, r := range records {
		ids[i] = nextID + uint64(i)
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		chunks[i] = &store.Chunk{
			ID:         id,
			VecID:      int64(ids[i]),
			DocID:      r.DocID,
			DocPath:    r.Path,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
			ContentID:  r.ContentID,
			Content:    r.Content,
		}
		docs[i] = &store.Document{ID: id, Content: r.Content}
	}

	if err := rt.dense.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	if err := rt.meta.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	if err := rt.lexical.Index(ctx, docs); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}

	if err := rt.meta.SetState(ctx, store.StateKeyDenseDimensions,
		strconv.Itoa(rt.embedder.Dimensions())); err != nil {
		return err
	}
	return rt.meta.SetState(ctx, store.StateKeyDenseModel, rt.embedder.ModelName())
}

func (rt *runtime) loadImages(ctx context.Context, records []loadRecord) error {
	if len(records) == 0 {
		return nil
	}
	if rt.encoder == nil || rt.images == nil {
		return fmt.Errorf("image records present but no cross-modal encoder configured")
	}

	captions := make([]string, len(records))
	for i, r := range records {
		captions[i] = r.Caption
	}
	vecs, err := rt.encoder.EmbedTexts(ctx, captions)
	if err != nil {
		return fmt.Errorf("embed captions: %w", err)
	}

	nextID := uint64(rt.images.Count())
	ids := make([]uint64, len(records))
	assets := make([]*store.ImageAsset, len(records))
	for i, r := range records {
		ids[i] = nextID + uint64(i)
		assets[i] = &store.ImageAsset{
			VecID:      int64(ids[i]),
			DocPath:    r.Path,
			ChunkIndex: r.ChunkIndex,
			Caption:    r.Caption,
			URI:        r.ImageURI,
		}
	}

	if err := rt.images.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("index image vectors: %w", err)
	}
	if err := rt.meta.SaveImages(ctx, assets); err != nil {
		return fmt.Errorf("save image assets: %w", err)
	}
	return rt.meta.SetState(ctx, store.StateKeyClipDimensions,
		strconv.Itoa(rt.encoder.Dimensions()))
}
