package clip

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-search/kestrel/internal/embed"
)

func TestStaticEncoderPassthrough(t *testing.T) {
	e := NewStaticEncoder(embed.NewStaticEmbedder())
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), []string{"a photo of a cat", "a dog"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestHTTPEncoderRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPEncoder(HTTPConfig{})
	assert.Error(t, err)
}

func TestHTTPEncoderEmbedTexts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed_text", r.URL.Path)

		var req embedTextsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedTextsResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			resp.Embeddings[i] = []float32{1, 0}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	e, err := NewHTTPEncoder(HTTPConfig{Endpoint: ts.URL, Dimensions: 2})
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedTexts(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
}

func TestHTTPEncoderServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer ts.Close()

	e, err := NewHTTPEncoder(HTTPConfig{Endpoint: ts.URL})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedTexts(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestHTTPEncoderCountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedTextsResponse{Embeddings: [][]float32{{1}}})
	}))
	defer ts.Close()

	e, err := NewHTTPEncoder(HTTPConfig{Endpoint: ts.URL})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "embeddings")
}
