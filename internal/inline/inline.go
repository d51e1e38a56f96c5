// Package inline turns a resolved document into self-contained HTML. Object
// URLs only live for the current session, so exported documents embed the
// stored bytes directly as data URIs. Remote images can optionally be fetched
// and embedded too.
package inline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"museflow/internal/imagestore"
)

// Fetcher retrieves remote image bytes. The returned mime type may be empty,
// in which case it is sniffed from the bytes.
type Fetcher func(ctx context.Context, url string) ([]byte, string, error)

// Inliner rewrites provenance-tagged <img> elements in place. Store serves
// local ids; Fetch, when non-nil, embeds remote images as well. Images that
// cannot be embedded keep their current src.
type Inliner struct {
	Store    *imagestore.Store
	Fetch    Fetcher
	Progress io.Writer
}

// Inline embeds image bytes into every img carrying a data-image-id, and,
// with a Fetcher configured, every img carrying a data-image-url. Parse
// failures return the input unchanged.
func (i *Inliner) Inline(ctx context.Context, doc string) string {
	if !strings.Contains(doc, "data-image-id") && !strings.Contains(doc, "data-image-url") {
		return doc
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return doc
	}

	parsed.Find("img[data-image-id]").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("data-image-id")
		uri, err := i.localDataURI(id)
		if err != nil {
			_, _ = fmt.Fprintf(i.progress(), "Inline: image %s: %v\n", id, err)
			return
		}
		sel.SetAttr("src", uri)
	})

	if i.Fetch != nil {
		parsed.Find("img[data-image-url]").Each(func(_ int, sel *goquery.Selection) {
			url, _ := sel.Attr("data-image-url")
			if url == "" || strings.HasPrefix(url, "data:") {
				return
			}
			data, mime, err := i.Fetch(ctx, url)
			if err != nil {
				_, _ = fmt.Fprintf(i.progress(), "Inline: fetch %s: %v\n", url, err)
				return
			}
			sel.SetAttr("src", dataURI(data, mime))
		})
	}

	rendered, err := parsed.Find("body").Html()
	if err != nil {
		return doc
	}
	return rendered
}

func (i *Inliner) localDataURI(id string) (string, error) {
	if i.Store == nil {
		return "", imagestore.ErrNotFound
	}
	data, err := i.Store.GetBytes(id)
	if err != nil {
		return "", err
	}

	mime := ""
	if meta, err := i.Store.GetMeta(id); err == nil {
		mime = meta.MimeType
	}
	return dataURI(data, mime), nil
}

func (i *Inliner) progress() io.Writer {
	if i.Progress != nil {
		return i.Progress
	}
	return io.Discard
}

func dataURI(data []byte, mime string) string {
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
