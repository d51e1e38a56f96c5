// Package ingest converts rich clipboard or drop payloads into plain text
// carrying image tokens. Word-processor HTML is flattened to readable text,
// every image reference becomes a registry token at the position it occurred,
// and pasted file attachments are compressed and persisted so their tokens
// stay resolvable for the life of the document.
package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"museflow/internal/imagestore"
	"museflow/internal/imaging"
	"museflow/internal/token"
)

// Attachment is one file that arrived with the clipboard payload or drop.
type Attachment struct {
	Name string
	Data []byte
}

// Payload is the raw input of one paste or drop. HTML wins over Text when
// both are present; attachments back image references whose sources the
// pipeline cannot fetch itself.
type Payload struct {
	HTML        string
	Text        string
	Attachments []Attachment
}

// Normalizer turns payloads into token-bearing plain text. Store and URLs
// may be nil, in which case attachment-backed images degrade to unresolved
// placeholders instead of being persisted.
type Normalizer struct {
	Registry *token.Registry
	Store    *imagestore.Store
	URLs     *imagestore.ObjectURLs
	Progress io.Writer

	// CompressImage defaults to imaging.Compress; tests swap it.
	CompressImage func(data []byte, opts imaging.Options) (imaging.Result, error)
}

// Normalize produces the plain-text fragment to splice into the document at
// the caret. Attachment files are consumed in strict encounter order, one per
// image reference that needs backing; this sequential-consumption policy is a
// heuristic, not content matching, and a missing attachment never blocks
// ingestion.
func (n *Normalizer) Normalize(p Payload) string {
	queue := &attachmentQueue{items: p.Attachments}

	var out string
	switch {
	case strings.TrimSpace(p.HTML) != "":
		out = n.fromHTML(p.HTML, queue)
	case strings.TrimSpace(p.Text) != "":
		out = n.fromMarkdownText(p.Text, queue)
	}

	// Files with no reference in the content are appended sequentially so a
	// paste never silently drops an image.
	for {
		att, ok := queue.next()
		if !ok {
			break
		}
		key := n.ingestAttachment(att)
		out += "\n" + token.ShortKey(key) + "\n"
	}

	return normalizeWhitespace(out)
}

type attachmentQueue struct {
	items []Attachment
	pos   int
}

func (q *attachmentQueue) next() (Attachment, bool) {
	if q.pos >= len(q.items) {
		return Attachment{}, false
	}
	att := q.items[q.pos]
	q.pos++
	return att, true
}

// sourceToken classifies one image source and returns the token standing in
// for it. Data URIs and absolute http(s) URLs register directly; anything the
// pipeline cannot fetch (blob:, file:, relative paths, opaque schemes) is
// backed by the next attachment, or reserved as an unresolved placeholder
// when none is left. An empty source never touches the attachment queue.
func (n *Normalizer) sourceToken(src string, queue *attachmentQueue) string {
	src = strings.TrimSpace(src)

	// A sourceless image never consumes an attachment.
	if src == "" {
		return token.ShortKey(n.Registry.CreateUnresolvedKey())
	}
	if id, ok := localImageID(src); ok {
		return token.Image(id)
	}
	if isFetchable(src) {
		return token.ShortKey(n.Registry.GetOrAssignShortKey(src))
	}

	att, ok := queue.next()
	if !ok {
		return token.ShortKey(n.Registry.CreateUnresolvedKey())
	}
	return token.ShortKey(n.ingestAttachment(att))
}

// ingestAttachment compresses and persists one attachment, minting a short
// key bound to the stored image. Failures are logged and degrade to an
// unresolved placeholder so the image keeps its position for manual fixup.
func (n *Normalizer) ingestAttachment(att Attachment) string {
	if n.Store == nil {
		return n.Registry.CreateUnresolvedKey()
	}

	compress := n.CompressImage
	if compress == nil {
		compress = imaging.Compress
	}

	result, err := compress(att.Data, imaging.Options{})
	if err != nil {
		n.logf("Ingest: compress %s: %v\n", att.Name, err)
		return n.Registry.CreateUnresolvedKey()
	}

	meta, err := n.Store.Save(imagestore.Meta{
		Name:           att.Name,
		MimeType:       result.MimeType,
		Width:          result.Width,
		Height:         result.Height,
		OriginalSize:   result.OriginalSize,
		CompressedSize: result.CompressedSize,
	}, result.Data)
	if err != nil {
		n.logf("Ingest: store %s: %v\n", att.Name, err)
		return n.Registry.CreateUnresolvedKey()
	}

	objectURL := "blob:museflow/" + meta.ID
	if n.URLs != nil {
		objectURL = n.URLs.Mint(meta.ID)
	}
	key := n.Registry.GetOrAssignShortKey(objectURL)
	n.Registry.BindLocalImage(key, meta.ID)
	return key
}

func (n *Normalizer) logf(format string, args ...any) {
	if n.Progress == nil {
		return
	}
	_, _ = fmt.Fprintf(n.Progress, format, args...)
}

// localImageID recognizes sources that already name a stored image: the
// image: scheme or a bare store id.
func localImageID(src string) (string, bool) {
	if rest, ok := strings.CutPrefix(src, "image:"); ok {
		rest = strings.TrimPrefix(rest, "//")
		if rest != "" {
			return rest, true
		}
	}
	if strings.HasPrefix(src, "img-") {
		return src, true
	}
	return "", false
}

func isFetchable(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "http:") ||
		strings.HasPrefix(lower, "https:")
}

var markdownImagePattern = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)

// fromMarkdownText tokenizes markdown image syntax in plain text, leaving all
// other text unchanged.
func (n *Normalizer) fromMarkdownText(text string, queue *attachmentQueue) string {
	return markdownImagePattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := markdownImagePattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return n.sourceToken(sub[1], queue)
	})
}

var (
	trailingSpaceBeforeNewline = regexp.MustCompile(`[ \t]+\n`)
	excessiveNewlines          = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(s string) string {
	s = trailingSpaceBeforeNewline.ReplaceAllString(s, "\n")
	s = excessiveNewlines.ReplaceAllString(s, "\n\n")
	return strings.Trim(s, "\n")
}
