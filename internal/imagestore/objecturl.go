package imagestore

import "github.com/google/uuid"

// ObjectURLs mints session-local blob URLs standing in for image bytes inside
// generated HTML. The URLs are deliberately unstable: every resolution pass
// starts a new generation and revokes the previous one, so holding a URL
// across re-formats is invalid. Lookup of a revoked URL fails the same way as
// lookup of a URL that was never minted.
type ObjectURLs struct {
	current map[string]string // url -> image id
}

// NewObjectURLs returns an empty minter.
func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{current: make(map[string]string)}
}

// Mint issues a fresh blob URL bound to the given image id.
func (o *ObjectURLs) Mint(imageID string) string {
	url := "blob:museflow/" + uuid.New().String()
	o.current[url] = imageID
	return url
}

// ImageID resolves a minted URL back to its image id.
func (o *ObjectURLs) ImageID(url string) (string, bool) {
	id, ok := o.current[url]
	return id, ok
}

// RevokeAll invalidates every URL minted since the last revocation. Callers
// run this at the start of each resolution pass so repeated re-formats do not
// accumulate live URLs without bound.
func (o *ObjectURLs) RevokeAll() {
	o.current = make(map[string]string)
}
