package token

import "strconv"

// Resolution is the outcome of a registry lookup. Both fields may be empty,
// which marks a placeholder that reserved a position without a resource.
type Resolution struct {
	URL          string
	LocalImageID string
}

// Registry issues short keys for verbose image resources and resolves them
// back. It is an explicit per-document object, not process state: callers
// create one per editing session and must keep it alive for the document's
// lifetime, since tokens already embedded in text become unresolvable if the
// registry is replaced. Entries are append-only; keys are never recycled.
//
// The registry is not safe for concurrent use. The pipeline runs ingestion
// and resolution sequentially within one user operation, matching the
// single-writer model of the rest of the system.
type Registry struct {
	next    int
	byURL   map[string]string
	entries map[string]*Resolution
}

// NewRegistry returns an empty registry whose first minted key is "1".
func NewRegistry() *Registry {
	return &Registry{
		next:    1,
		byURL:   make(map[string]string),
		entries: make(map[string]*Resolution),
	}
}

// GetOrAssignShortKey returns the key already assigned to url, or mints the
// next counter value and records the mapping in both directions. Re-pasting
// the same image therefore reuses the same token instead of growing the
// registry.
func (r *Registry) GetOrAssignShortKey(url string) string {
	if key, ok := r.byURL[url]; ok {
		return key
	}
	key := r.mint()
	r.byURL[url] = key
	r.entries[key] = &Resolution{URL: url}
	return key
}

// CreateUnresolvedKey mints a key with no backing resource. Ingestion uses it
// to hold the position of an image whose bytes were unavailable, rather than
// fabricating a broken link or dropping the image silently.
func (r *Registry) CreateUnresolvedKey() string {
	key := r.mint()
	r.entries[key] = &Resolution{}
	return key
}

// BindLocalImage records that resolving key should prefer the given locally
// stored image id over a live fetch of the registered URL.
func (r *Registry) BindLocalImage(key, localImageID string) {
	entry, ok := r.entries[key]
	if !ok {
		entry = &Resolution{}
		r.entries[key] = entry
	}
	entry.LocalImageID = localImageID
}

// Resolve looks up a short key. The second return value is false for keys the
// registry never issued.
func (r *Registry) Resolve(key string) (Resolution, bool) {
	entry, ok := r.entries[key]
	if !ok {
		return Resolution{}, false
	}
	return *entry, true
}

// Len reports how many keys have been issued.
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) mint() string {
	key := strconv.Itoa(r.next)
	r.next++
	return key
}
