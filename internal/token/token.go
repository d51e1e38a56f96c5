// Package token defines the placeholder syntax embedded in document text and
// the session registry that maps short keys to image resources. Tokens are the
// only spans the generation backend is instructed to preserve verbatim, so
// their syntax is the wire contract between ingestion, formatting, and
// resolution.
package token

import (
	"regexp"
	"strings"
)

// The four recognized token forms. All matching is case-insensitive and
// tolerates whitespace around the colon.
var (
	// [[IMAGE:<id>]] - canonical reference to a locally stored image.
	ImagePattern = regexp.MustCompile(`(?i)\[\[\s*IMAGE\s*:\s*([^\]\s][^\]]*?)\s*\]\]`)

	// {{IMG:<id>}} - legacy alias for a local image id.
	LegacyImagePattern = regexp.MustCompile(`(?i)\{\{\s*IMG\s*:\s*([^}\s:][^}]*?)\s*\}\}`)

	// {{IMGURL:<url>}} - inline literal URL, remote or data URI.
	URLLiteralPattern = regexp.MustCompile(`(?i)\{\{\s*IMGURL\s*:\s*([^}\s][^}]*?)\s*\}\}`)

	// [[URL:<shortKey>]] - indirection through the registry.
	ShortKeyPattern = regexp.MustCompile(`(?i)\[\[\s*URL\s*:\s*([^\]\s][^\]]*?)\s*\]\]`)
)

// Image renders the canonical local-image token for an id.
func Image(id string) string {
	return "[[IMAGE:" + id + "]]"
}

// ShortKey renders the registry-indirection token for a short key.
func ShortKey(key string) string {
	return "[[URL:" + key + "]]"
}

// URLLiteral renders the inline-URL token. Ingestion never emits this form
// itself, but users may type it and the compressor must rewrite it.
func URLLiteral(url string) string {
	return "{{IMGURL:" + url + "}}"
}

// LocalImageIDs returns the distinct local image ids referenced by canonical
// and legacy tokens, in first-occurrence order.
func LocalImageIDs(text string) []string {
	seen := make(map[string]bool)
	var ids []string

	collect := func(pattern *regexp.Regexp) {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			id := strings.TrimSpace(match[1])
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}

	collect(ImagePattern)
	collect(LegacyImagePattern)
	return ids
}

// ShortKeys returns the distinct short keys referenced by [[URL:...]] tokens,
// in first-occurrence order.
func ShortKeys(text string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, match := range ShortKeyPattern.FindAllStringSubmatch(text, -1) {
		key := strings.TrimSpace(match[1])
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// ContainsAny reports whether any recognized token form occurs in text.
func ContainsAny(text string) bool {
	return ImagePattern.MatchString(text) ||
		LegacyImagePattern.MatchString(text) ||
		URLLiteralPattern.MatchString(text) ||
		ShortKeyPattern.MatchString(text)
}
