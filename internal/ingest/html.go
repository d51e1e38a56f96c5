package ingest

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// Non-content elements discarded wholesale: editor and document metadata,
// embeds the flattened text cannot represent, and anything in a foreign
// office-markup namespace.
var skippedElements = map[string]bool{
	"style":  true,
	"script": true,
	"meta":   true,
	"link":   true,
	"title":  true,
	"head":   true,
	"object": true,
	"embed":  true,
	"iframe": true,
}

// Elements whose content needs a newline boundary on both sides so semantic
// separation survives flattening.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "dl": true, "dt": true, "dd": true,
	"blockquote": true, "pre": true, "figure": true, "figcaption": true,
	"table": true, "tr": true, "td": true, "th": true,
	"header": true, "footer": true, "hr": true,
}

// fromHTML flattens a pasted HTML fragment to plain text, emitting a token at
// the position of every image-bearing element.
func (n *Normalizer) fromHTML(fragment string, queue *attachmentQueue) string {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		// Unparseable clipboard HTML degrades to the markdown text path.
		return n.fromMarkdownText(fragment, queue)
	}

	var b strings.Builder
	n.walk(root, queue, &b)
	return stripCSSLeaks(b.String())
}

func (n *Normalizer) walk(node *html.Node, queue *attachmentQueue, b *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		b.WriteString(flattenText(node.Data))
		return
	case html.ElementNode:
		name := strings.ToLower(node.Data)

		// Office-markup tags (o:p, v:shape, w:sdt) carry no content worth
		// keeping; recognized metadata elements likewise.
		if skippedElements[name] || strings.Contains(name, ":") {
			return
		}

		if name == "br" {
			b.WriteString("\n")
			return
		}

		if name == "img" || name == "image" {
			b.WriteString(n.sourceToken(imageSource(node), queue))
			return
		}

		// Foreign content (svg, math): no text layout of its own, but it may
		// hold <image> references worth tokenizing.
		if node.Namespace != "" {
			for child := node.FirstChild; child != nil; child = child.NextSibling {
				n.walk(child, queue, b)
			}
			return
		}

		block := blockElements[name] || isListLikeParagraph(node)
		if block {
			ensureNewline(b)
		}
		if name == "li" || isListLikeParagraph(node) {
			b.WriteString("- ")
		}

		for child := node.FirstChild; child != nil; child = child.NextSibling {
			n.walk(child, queue, b)
		}

		if block {
			ensureNewline(b)
		}
		return
	}

	for child := node.FirstChild; child != nil; child = child.NextSibling {
		n.walk(child, queue, b)
	}
}

// imageSource pulls the source from an <img> or a vector-graphics <image>
// reference, which may use a hyperlink-reference attribute instead of src.
func imageSource(node *html.Node) string {
	for _, attrKey := range []string{"src", "href", "xlink:href"} {
		for _, attr := range node.Attr {
			if strings.EqualFold(attr.Key, attrKey) && strings.TrimSpace(attr.Val) != "" {
				return attr.Val
			}
		}
	}
	return ""
}

// isListLikeParagraph recognizes paragraphs that word processors flag as list
// items through class or style conventions rather than <li> markup.
func isListLikeParagraph(node *html.Node) bool {
	if !strings.EqualFold(node.Data, "p") {
		return false
	}
	for _, attr := range node.Attr {
		switch strings.ToLower(attr.Key) {
		case "class":
			if strings.Contains(strings.ToLower(attr.Val), "msolistparagraph") {
				return true
			}
		case "style":
			if strings.Contains(strings.ToLower(attr.Val), "mso-list") {
				return true
			}
		}
	}
	return false
}

func flattenText(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func ensureNewline(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

// Residual document-metadata CSS that leaks into text nodes from
// word-processor clipboards: vendor-prefixed declarations and face/page/list
// rule bodies.
var cssLeakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)@(?:page|font-face|list)\b[^{}\n]*\{[^}]*\}`),
	regexp.MustCompile(`(?i)\bmso-[\w-]+\s*:\s*[^;\n{}]*;?`),
	regexp.MustCompile(`(?i)\bpanose-1\s*:\s*[^;\n{}]*;?`),
	regexp.MustCompile(`(?i)[\w.@-]+\s*\{\s*(?:font-family|behavior|margin)[^}]*\}`),
}

func stripCSSLeaks(s string) string {
	for _, pattern := range cssLeakPatterns {
		s = pattern.ReplaceAllString(s, "")
	}
	return s
}

// NormalizeMarkdown is the structure-preserving variant of Normalize for HTML
// payloads: instead of flattening, the fragment is converted to markdown so
// headings and emphasis survive for the formatter, and image references are
// tokenized through the markdown path.
func (n *Normalizer) NormalizeMarkdown(p Payload) (string, error) {
	if strings.TrimSpace(p.HTML) == "" {
		return n.Normalize(p), nil
	}

	markdownText, err := htmltomarkdown.ConvertString(p.HTML)
	if err != nil {
		return "", err
	}
	markdownText = strings.ReplaceAll(markdownText, "\r\n", "\n")
	markdownText = strings.TrimSpace(markdownText)

	return n.Normalize(Payload{Text: markdownText, Attachments: p.Attachments}), nil
}
