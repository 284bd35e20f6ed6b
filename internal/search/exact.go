package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kestrel-search/kestrel/internal/store"
)

// Match fields, in surfacing priority order.
const (
	MatchFieldContent  = "content"
	MatchFieldFilename = "filename"
	MatchFieldPath     = "path"
)

// ExactMatch is a literal, case-insensitive substring hit. Distinct from
// semantic candidates: it carries hit position data instead of signal scores.
type ExactMatch struct {
	Chunk    *store.Chunk
	Field    string
	Position int
	Length   int
	Preview  string

	// Perfect means the whole chunk content equals the query.
	Perfect bool
}

// ExactSource scans the metadata store for literal query occurrences. The
// scan is deliberately unbounded: exact hits are rare and must not be missed.
type ExactSource struct {
	meta          store.MetadataStore
	previewRadius int
	logger        *slog.Logger
}

// NewExactSource creates an exact-match source.
func NewExactSource(meta store.MetadataStore, previewRadius int, logger *slog.Logger) *ExactSource {
	if logger == nil {
		logger = slog.Default()
	}
	if previewRadius <= 0 {
		previewRadius = 80
	}
	return &ExactSource{meta: meta, previewRadius: previewRadius, logger: logger}
}

// Find returns all exact hits for the query, perfect matches first, then by
// field priority and position. Store failure degrades to no hits.
func (s *ExactSource) Find(ctx context.Context, query string) ([]*ExactMatch, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, true
	}

	var matches []*ExactMatch
	err := s.meta.ScanChunks(ctx, func(chunk *store.Chunk) error {
		if m := s.matchChunk(chunk, needle); m != nil {
			matches = append(matches, m)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("exact match scan degraded", "error", err)
		return nil, false
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Perfect != b.Perfect {
			return a.Perfect
		}
		if a.Field != b.Field {
			return fieldPriority(a.Field) < fieldPriority(b.Field)
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return ChunkKey(a.Chunk) < ChunkKey(b.Chunk)
	})
	return matches, true
}

func (s *ExactSource) matchChunk(chunk *store.Chunk, needle string) *ExactMatch {
	content := strings.ToLower(chunk.Content)
	if strings.TrimSpace(content) == needle {
		return &ExactMatch{
			Chunk:   chunk,
			Field:   MatchFieldContent,
			Length:  len(needle),
			Preview: previewAround(chunk.Content, 0, len(chunk.Content), s.previewRadius),
			Perfect: true,
		}
	}
	if pos := strings.Index(content, needle); pos >= 0 {
		return &ExactMatch{
			Chunk:    chunk,
			Field:    MatchFieldContent,
			Position: pos,
			Length:   len(needle),
			Preview:  previewAround(chunk.Content, pos, len(needle), s.previewRadius),
		}
	}
	if pos := strings.Index(strings.ToLower(chunk.Filename), needle); pos >= 0 {
		return &ExactMatch{
			Chunk:    chunk,
			Field:    MatchFieldFilename,
			Position: pos,
			Length:   len(needle),
			Preview:  chunk.Filename,
		}
	}
	if pos := strings.Index(strings.ToLower(chunk.DocPath), needle); pos >= 0 {
		return &ExactMatch{
			Chunk:    chunk,
			Field:    MatchFieldPath,
			Position: pos,
			Length:   len(needle),
			Preview:  chunk.DocPath,
		}
	}
	return nil
}

func fieldPriority(field string) int {
	switch field {
	case MatchFieldContent:
		return 0
	case MatchFieldFilename:
		return 1
	default:
		return 2
	}
}

// previewAround extracts a context window around a hit, clamped to the text.
// Offsets come from a lowercased copy; for the rare characters whose
// lowercase form has a different byte length the window may shift slightly,
// which is acceptable for a preview.
func previewAround(text string, pos, length, radius int) string {
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + length + radius
	if end > len(text) {
		end = len(text)
	}
	if start > len(text) {
		start = len(text)
	}

	// Back off to rune boundaries.
	for start > 0 && start < len(text) && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}

	preview := text[start:end]
	if start > 0 {
		preview = "…" + preview
	}
	if end < len(text) {
		preview += "…"
	}
	return preview
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
