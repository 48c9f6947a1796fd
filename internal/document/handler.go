package document

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Handler is the contract every format adapter implements. One Handler
// instance owns exactly one loaded document.
type Handler interface {
	Kind() Kind
	// Load parses data. It returns ErrUnsupportedFormat when data is not this
	// format at all. Any later failure yields a Degraded document, not an error.
	Load(ctx context.Context, data []byte) (*Document, error)
	// Render returns displayable content for a unit, or ErrOutOfRange.
	Render(ctx context.Context, index int) (*Content, error)
	// Text returns the plain text of a unit. Results are cached.
	Text(ctx context.Context, index int) (string, error)
	// Search scans every unit for query, case-insensitively.
	Search(ctx context.Context, query string) ([]SearchHit, error)
	// Destroy releases caches and resources. It is idempotent.
	Destroy() error
}

// Factory builds a fresh Handler.
type Factory func() Handler

// Format describes a registered document format.
type Format struct {
	Name       string
	Extensions []string
	New        Factory
}

// Registry maps file extensions to handler factories.
type Registry struct {
	formats []Format
}

// NewRegistry creates a registry holding formats.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{}
	for _, f := range formats {
		r.Register(f)
	}
	return r
}

// Register adds a format to the registry.
func (r *Registry) Register(f Format) {
	r.formats = append(r.formats, f)
}

// HandlerFor returns a new handler for filename's extension.
func (r *Registry) HandlerFor(filename string) (Handler, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range r.formats {
		for _, e := range f.Extensions {
			if ext == e {
				return f.New(), nil
			}
		}
	}
	return nil, fmt.Errorf("%q: %w", ext, ErrUnsupportedFormat)
}

// Supported returns registered format names with their extensions.
func (r *Registry) Supported() []string {
	var out []string
	for _, f := range r.formats {
		out = append(out, f.Name+" ("+strings.Join(f.Extensions, ", ")+")")
	}
	sort.Strings(out)
	return out
}
