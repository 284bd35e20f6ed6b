package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPromptsEnglish(t *testing.T) {
	prompts := ExpandPrompts("sunset over mountains", nil, 12)

	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts, "sunset over mountains")
	assert.Contains(t, prompts, "a photo of sunset over mountains")
	for _, p := range prompts {
		assert.NotContains(t, p, "の画像")
	}
}

func TestExpandPromptsNonLatin(t *testing.T) {
	prompts := ExpandPrompts("富士山", nil, 12)
	assert.Contains(t, prompts, "富士山 の画像")
	assert.Contains(t, prompts, "a photo of 富士山")
}

func TestExpandPromptsKeywordBridging(t *testing.T) {
	prompts := ExpandPrompts("query", []string{"volcano", "crater"}, 12)
	assert.Contains(t, prompts, "a photo of volcano")
	assert.Contains(t, prompts, "an illustration of crater")
}

func TestExpandPromptsKeywordCap(t *testing.T) {
	keywords := make([]string, 20)
	for i := range keywords {
		keywords[i] = string(rune('a'+i)) + "word"
	}
	prompts := ExpandPrompts("q", keywords, 12)

	// 5 English templates + 12 keywords x 3 templates.
	assert.Len(t, prompts, 5+12*3)
}

func TestExpandPromptsDeduplicates(t *testing.T) {
	prompts := ExpandPrompts("cat", []string{"cat"}, 12)
	seen := make(map[string]int)
	for _, p := range prompts {
		seen[p]++
		assert.Equal(t, 1, seen[p], "duplicate prompt %q", p)
	}
}

func TestExtractKeywords(t *testing.T) {
	contents := []string{
		"The volcano erupted near the crater rim",
		"Volcano ash covered the 村 entirely",
	}
	got := ExtractKeywords(contents, 12)

	assert.Contains(t, got, "volcano")
	assert.Contains(t, got, "crater")
	assert.NotContains(t, got, "the") // stopword
	assert.NotContains(t, got, "村")  // non-ASCII

	// Deduplicated: volcano appears once.
	count := 0
	for _, k := range got {
		if k == "volcano" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractKeywordsLimit(t *testing.T) {
	got := ExtractKeywords([]string{"one two three four five six seven eight nine"}, 3)
	assert.Len(t, got, 3)
}

func TestContainsNonLatin(t *testing.T) {
	assert.False(t, containsNonLatin("hello world 123"))
	assert.False(t, containsNonLatin("café naïve"))
	assert.True(t, containsNonLatin("検索エンジン"))
	assert.True(t, containsNonLatin("поиск"))
	assert.True(t, containsNonLatin("mixed 検索"))
}
