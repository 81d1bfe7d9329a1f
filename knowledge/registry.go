package knowledge

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Document is one unit of loaded reference text.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentLoader is the unified interface for loading documents from a file.
type DocumentLoader interface {
	// Load reads the source and returns documents.
	Load(ctx context.Context, source string) ([]Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt", ".md").
	SupportedTypes() []string
}

// LoaderRegistry routes Load calls to the appropriate DocumentLoader based on file extension.
// Extensions without a registered loader fall back to the text loader.
type LoaderRegistry struct {
	mu       sync.RWMutex
	loaders  map[string]DocumentLoader
	fallback DocumentLoader
}

// NewLoaderRegistry creates a registry pre-populated with the built-in loaders.
func NewLoaderRegistry() *LoaderRegistry {
	text := NewTextLoader()
	r := &LoaderRegistry{
		loaders:  make(map[string]DocumentLoader),
		fallback: text,
	}

	builtins := []DocumentLoader{
		text,
		NewMarkdownLoader(),
		NewCSVLoader(CSVLoaderConfig{}),
		NewJSONLoader(JSONLoaderConfig{}),
	}
	for _, l := range builtins {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}
	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".pdf").
func (r *LoaderRegistry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Load determines the loader from the source's file extension and delegates to it.
func (r *LoaderRegistry) Load(ctx context.Context, source string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(source))

	r.mu.RLock()
	l, ok := r.loaders[ext]
	if !ok {
		l = r.fallback
	}
	r.mu.RUnlock()

	return l.Load(ctx, source)
}

// SupportedTypes returns all registered extensions, sorted.
func (r *LoaderRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
