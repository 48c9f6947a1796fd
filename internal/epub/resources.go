package epub

import (
	"encoding/base64"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme prefixes every resource handle handed out by an adapter.
const BlobScheme = "blob:epubizon/"

// Blob is a resolved image held in memory until its adapter is destroyed.
type Blob struct {
	Handle    string
	Path      string
	MediaType string
	Data      []byte
}

// Resources tracks the blob handles created while rendering chapters. Each
// container path gets one handle, reused across renders.
type Resources struct {
	mu     sync.Mutex
	byPath map[string]string
	blobs  map[string]Blob
}

// NewResources creates an empty resource set.
func NewResources() *Resources {
	return &Resources{
		byPath: make(map[string]string),
		blobs:  make(map[string]Blob),
	}
}

// Add registers data for the container path p and returns its handle.
func (r *Resources) Add(p, mediaType string, data []byte) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byPath[p]; ok {
		return h
	}
	h := BlobScheme + uuid.NewString()
	r.byPath[p] = h
	r.blobs[h] = Blob{Handle: h, Path: p, MediaType: mediaType, Data: data}
	return h
}

// Open returns the blob behind handle.
func (r *Resources) Open(handle string) (Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blobs[handle]
	return b, ok
}

// Len returns the number of live handles.
func (r *Resources) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// ReleaseAll drops every handle and returns how many were released.
func (r *Resources) ReleaseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.blobs)
	r.byPath = make(map[string]string)
	r.blobs = make(map[string]Blob)
	return n
}

// DataURI encodes data inline. SVG images use this instead of a blob handle.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
