// Package resolve turns the token vocabulary inside generated HTML into
// final, styled image blocks. Local ids are served from the image store
// through fresh object URLs, short keys go through the registry, and anything
// without a resource becomes an explicit "image not found" block. Repair runs
// on both sides of substitution, so even token-free documents come out clean.
package resolve

import (
	"errors"
	"fmt"
	htmlescape "html"
	"io"
	"strings"

	"museflow/internal/htmlrepair"
	"museflow/internal/imagestore"
	"museflow/internal/style"
	"museflow/internal/token"
)

// Resolver holds the collaborators shared by one document session. Store may
// be nil, in which case every local lookup degrades to the not-found block.
type Resolver struct {
	Registry *token.Registry
	Store    *imagestore.Store
	URLs     *imagestore.ObjectURLs
	Style    style.Style
	Progress io.Writer
}

// Resolve substitutes every token occurrence in doc and repairs the result.
// It never fails: malformed token syntax stays literal, missing resources
// render as visible placeholders.
func (r *Resolver) Resolve(doc string) string {
	doc = htmlrepair.PreNormalize(doc)

	localIDs := token.LocalImageIDs(doc)
	shortKeys := token.ShortKeys(doc)
	hasURLLiterals := token.URLLiteralPattern.MatchString(doc)

	if len(localIDs) == 0 && len(shortKeys) == 0 && !hasURLLiterals {
		// Fast path: nothing to substitute, but corruption can occur
		// even without tokens.
		return htmlrepair.Sanitize(htmlrepair.StripTails(doc))
	}

	// Short keys bound to a local image also need bytes resolved.
	for _, key := range shortKeys {
		if res, ok := r.registryResolve(key); ok && res.LocalImageID != "" {
			localIDs = append(localIDs, res.LocalImageID)
		}
	}

	objectURLs := r.mintObjectURLs(localIDs)

	dec := style.DecorationFor(r.Style)

	doc = token.ImagePattern.ReplaceAllStringFunc(doc, func(match string) string {
		sub := token.ImagePattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return r.localBlock(dec, sub[1], objectURLs)
	})
	doc = token.LegacyImagePattern.ReplaceAllStringFunc(doc, func(match string) string {
		sub := token.LegacyImagePattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return r.localBlock(dec, sub[1], objectURLs)
	})
	doc = token.URLLiteralPattern.ReplaceAllStringFunc(doc, func(match string) string {
		sub := token.URLLiteralPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return remoteBlock(dec, sub[1])
	})
	doc = token.ShortKeyPattern.ReplaceAllStringFunc(doc, func(match string) string {
		sub := token.ShortKeyPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		return r.shortKeyBlock(dec, sub[1], objectURLs)
	})

	return htmlrepair.Sanitize(htmlrepair.StripTails(doc))
}

// mintObjectURLs revokes the previous generation of object URLs and mints a
// fresh URL for every distinct local id whose bytes are present. Object URLs
// are not stable across resolutions, so this runs on every pass.
func (r *Resolver) mintObjectURLs(localIDs []string) map[string]string {
	if r.URLs != nil {
		r.URLs.RevokeAll()
	}

	urls := make(map[string]string, len(localIDs))
	for _, id := range localIDs {
		if _, done := urls[id]; done {
			continue
		}
		if r.Store == nil {
			continue
		}
		if _, err := r.Store.GetBytes(id); err != nil {
			if !errors.Is(err, imagestore.ErrNotFound) && r.Progress != nil {
				_, _ = fmt.Fprintf(r.Progress, "Resolve: image %s unavailable: %v\n", id, err)
			}
			continue
		}
		if r.URLs != nil {
			urls[id] = r.URLs.Mint(id)
		} else {
			urls[id] = "blob:museflow/" + id
		}
	}
	return urls
}

func (r *Resolver) registryResolve(key string) (token.Resolution, bool) {
	if r.Registry == nil {
		return token.Resolution{}, false
	}
	return r.Registry.Resolve(key)
}

func (r *Resolver) localBlock(dec style.Decoration, id string, objectURLs map[string]string) string {
	src, ok := objectURLs[id]
	if !ok {
		return notFoundBlock()
	}
	return imageBlock(dec, src, "data-image-id", id)
}

func (r *Resolver) shortKeyBlock(dec style.Decoration, key string, objectURLs map[string]string) string {
	res, ok := r.registryResolve(key)
	if !ok {
		return notFoundBlock()
	}
	if res.LocalImageID != "" {
		return r.localBlock(dec, res.LocalImageID, objectURLs)
	}
	if res.URL == "" {
		return notFoundBlock()
	}
	// A bare object URL from a previous generation may still identify a
	// stored image.
	if r.URLs != nil {
		if id, ok := r.URLs.ImageID(res.URL); ok {
			return r.localBlock(dec, id, objectURLs)
		}
	}
	if strings.HasPrefix(res.URL, "blob:") {
		return notFoundBlock()
	}
	return remoteBlock(dec, res.URL)
}

func remoteBlock(dec style.Decoration, url string) string {
	return imageBlock(dec, url, "data-image-url", url)
}

func imageBlock(dec style.Decoration, src, provenanceAttr, provenanceValue string) string {
	var b strings.Builder
	b.WriteString(`<section style="`)
	b.WriteString(dec.WrapperStyle)
	b.WriteString(`"><img src="`)
	b.WriteString(htmlescape.EscapeString(src))
	b.WriteString(`" style="`)
	b.WriteString(dec.ImageStyle)
	b.WriteString(`" `)
	b.WriteString(provenanceAttr)
	b.WriteString(`="`)
	b.WriteString(htmlescape.EscapeString(provenanceValue))
	b.WriteString(`" alt=""/></section>`)
	return b.String()
}

func notFoundBlock() string {
	return `<section style="` + style.NotFoundStyle + `">image not found</section>`
}
