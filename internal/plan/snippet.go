package plan

import "strings"

// articleSnippet bounds the text shown to the planning call, cutting at
// paragraph boundaries so the model never sees a sentence sliced mid-word.
// Paragraphs are separated by blank lines; the first paragraph is always
// included even when it alone exceeds the budget.
func articleSnippet(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxChars {
		return text
	}

	var b strings.Builder
	for _, paragraph := range splitParagraphs(text) {
		if b.Len() > 0 && b.Len()+len(paragraph)+2 > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(paragraph)
	}

	snippet := b.String()
	if len(snippet) > maxChars {
		snippet = cutRunes(snippet, maxChars)
	}
	return snippet
}

func splitParagraphs(text string) []string {
	lines := strings.Split(text, "\n")
	paragraphs := make([]string, 0, len(lines))
	current := make([]string, 0, 16)

	flush := func() {
		if len(current) == 0 {
			return
		}
		paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(current, "\n")))
		current = current[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}

	flush()
	return paragraphs
}

// cutRunes truncates to at most maxChars bytes without splitting a rune.
func cutRunes(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
