// Package htmlrepair cleans the specific corruption shapes the generation
// backend is known to produce around image tokens: tokens echoed inside an
// <img> tag, hallucinated bracket descriptions, leftover attribute tails after
// a broken tag, and truncation in the middle of a token or tag. It is
// pattern-based text repair, not HTML recovery; the one structural pass
// (Sanitize) re-parses only to drop image elements that cannot render. All
// functions are total and idempotent.
package htmlrepair

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"museflow/internal/token"
)

var (
	// An <img ...> tag that carries a token in its attribute soup. The
	// generator is instructed never to wrap tokens, but it happens.
	wrappedTokenImg = regexp.MustCompile(
		`(?i)<img\b[^>]*?(\[\[\s*(?:IMAGE|URL)\s*:[^\]]*\]\]|\{\{\s*(?:IMG|IMGURL)\s*:[^}]*\}\})[^>]*/?>`)

	// Natural-language image descriptions in bracket form, e.g.
	// "[image 1024x768 PNG]". The colon exclusion keeps real tokens
	// (whose inner text is "[IMAGE:id]") out of reach.
	bracketDescription = regexp.MustCompile(`(?i)\[image\b[^\[\]:]*\]`)

	emptySrcImg = regexp.MustCompile(`(?i)<img\b[^>]*\bsrc\s*=\s*(?:""|'')[^>]*/?>`)

	// Leftover attribute text stranded outside a tag after its opening was
	// consumed, e.g. `src="" style="margin:0" alt=""/>` sitting as plain
	// text right after a block or token. Anchoring on the preceding `>`,
	// `]]`, or `}}` keeps attributes inside well-formed tags untouched.
	attributeTail = regexp.MustCompile(
		`(?i)(^|>|\]\]|\}\})\s*(?:(?:src|alt|style|title|width|height|class|id|loading|data-[\w-]+)\s*=\s*"[^"]*"\s*)+/?>`)

	// An <img tag cut off by truncation: no closing bracket before the end
	// of the document.
	unterminatedImg = regexp.MustCompile(`(?i)<img\b[^>]*$`)
)

// PreNormalize undoes generator mangling before token substitution: tokens
// wrapped in an <img> tag collapse back to the bare token, bracket-form image
// descriptions disappear, and image elements with an empty source are
// removed.
func PreNormalize(s string) string {
	s = wrappedTokenImg.ReplaceAllStringFunc(s, func(match string) string {
		sub := wrappedTokenImg.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return sub[1]
	})
	s = bracketDescription.ReplaceAllString(s, "")
	s = emptySrcImg.ReplaceAllString(s, "")
	return s
}

// StripTails removes attribute-tail fragments left behind as plain text and
// cuts truncation damage at the end of the document: an unterminated
// [[...]] or {{...}} token, or an <img tag with no closing bracket.
func StripTails(s string) string {
	s = attributeTail.ReplaceAllString(s, "$1")

	for {
		trimmed := cutUnterminated(s)
		if trimmed == s {
			break
		}
		s = trimmed
	}

	return strings.TrimRight(s, " \t\r\n")
}

func cutUnterminated(s string) string {
	if idx := strings.LastIndex(s, "[["); idx >= 0 && !strings.Contains(s[idx:], "]]") {
		return s[:idx]
	}
	if idx := strings.LastIndex(s, "{{"); idx >= 0 && !strings.Contains(s[idx:], "}}") {
		return s[:idx]
	}
	if loc := unterminatedImg.FindStringIndex(s); loc != nil {
		return s[:loc[0]]
	}
	return s
}

// Sanitize re-parses the document and removes image elements whose source is
// empty, about:blank, or still a textual placeholder. Parse failures return
// the input unchanged; this layer never fails outright.
func Sanitize(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		src = strings.TrimSpace(src)
		if isBrokenSource(src) {
			sel.Remove()
		}
	})

	rendered, err := doc.Find("body").Html()
	if err != nil {
		return s
	}
	return rendered
}

func isBrokenSource(src string) bool {
	if src == "" || strings.EqualFold(src, "about:blank") {
		return true
	}
	return token.ContainsAny(src)
}

// Repair is the full reusable contract: pre-normalization, tail stripping,
// then structural sanitization. Safe on arbitrary input and idempotent.
func Repair(s string) string {
	if strings.TrimSpace(s) == "" {
		return strings.TrimSpace(s)
	}
	return Sanitize(StripTails(PreNormalize(s)))
}
