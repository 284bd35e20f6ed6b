package search

import (
	"strings"
	"unicode"
)

// Prompt expansion for cross-modal recall. A single raw query embeds poorly
// into the text/image space, so it is rephrased with templates, mirrored in
// the query's native script when it is not Latin, and bridged with keywords
// mined from the top dense-text results.

var englishPromptTemplates = []string{
	"%s",
	"a photo of %s",
	"an image showing %s",
	"a diagram of %s",
	"a screenshot of %s",
}

// nativePromptTemplates are added when the query contains non-Latin letters,
// since the caption side of the shared space is dominated by English.
var nativePromptTemplates = []string{
	"%s の画像",
	"%s 的图片",
	"%s 사진",
}

var keywordPromptTemplates = []string{
	"a photo of %s",
	"an illustration of %s",
	"%s",
}

// ExpandPrompts builds the expanded prompt set for a query. keywords come
// from ExtractKeywords; maxKeywords caps the bridged prompts.
func ExpandPrompts(query string, keywords []string, maxKeywords int) []string {
	query = strings.TrimSpace(query)
	seen := make(map[string]bool)
	var prompts []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			prompts = append(prompts, p)
		}
	}

	for _, tpl := range englishPromptTemplates {
		add(fill(tpl, query))
	}
	if containsNonLatin(query) {
		for _, tpl := range nativePromptTemplates {
			add(fill(tpl, query))
		}
	}

	if maxKeywords > 0 && len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	for _, kw := range keywords {
		for _, tpl := range keywordPromptTemplates {
			add(fill(tpl, kw))
		}
	}
	return prompts
}

func fill(tpl, value string) string {
	return strings.Replace(tpl, "%s", value, 1)
}

// ExtractKeywords mines ASCII keywords from result contents for bridge
// prompts. Words shorter than three characters and common stopwords are
// skipped; output is deduplicated, lowercased, capped, in first-seen order.
func ExtractKeywords(contents []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, content := range contents {
		for _, word := range strings.FieldsFunc(content, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if !isASCIIWord(word) || len(word) < 3 {
				continue
			}
			word = strings.ToLower(word)
			if stopwords[word] || seen[word] {
				continue
			}
			seen[word] = true
			out = append(out, word)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func isASCIIWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func containsNonLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"not": true, "this": true, "that": true, "with": true, "from": true,
	"have": true, "has": true, "had": true, "but": true, "all": true,
	"its": true, "can": true, "will": true, "when": true, "which": true,
	"their": true, "them": true, "they": true, "you": true, "your": true,
}
