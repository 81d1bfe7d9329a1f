package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/crewflow/types"
	"go.uber.org/zap"
)

// AllKey is the fragment key holding every source joined together.
const AllKey = "knowledge"

// KeyPrefix prefixes the per-source fragment keys.
const KeyPrefix = AllKey + "."

var nonKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)

// Source references one knowledge document or a directory of documents.
type Source struct {
	// Name is the placeholder suffix; empty means derived from the file name.
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// Key returns the fragment key of the source, e.g. "knowledge.style_guide".
func (s Source) Key() string {
	name := s.Name
	if name == "" {
		base := filepath.Base(s.Path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	name = strings.Trim(nonKeyChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if name == "" {
		name = "source"
	}
	return KeyPrefix + name
}

// Fragment is the read-only set of placeholder values produced by a load.
type Fragment map[string]string

// Keys returns the fragment keys, sorted.
func (f Fragment) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loader turns knowledge sources into a Fragment.
type Loader struct {
	registry *LoaderRegistry
	logger   *zap.Logger
}

// NewLoader creates a Loader. A nil registry uses NewLoaderRegistry.
func NewLoader(registry *LoaderRegistry, logger *zap.Logger) *Loader {
	if registry == nil {
		registry = NewLoaderRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		registry: registry,
		logger:   logger.With(zap.String("component", "knowledge_loader")),
	}
}

// Load reads every source in order. Any missing or unreadable source fails
// the whole load.
func (l *Loader) Load(ctx context.Context, sources []Source) (Fragment, error) {
	frag := make(Fragment, len(sources)+1)
	var all []string

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrCancelled, "knowledge load").WithCause(err)
		}

		key := src.Key()
		if _, dup := frag[key]; dup {
			return nil, types.Errorf(types.ErrConfiguration, "duplicate knowledge source name %q", key)
		}

		content, docs, err := l.loadSource(ctx, src.Path)
		if err != nil {
			code := types.ErrKnowledgeMissing
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				code = types.ErrCancelled
			}
			return nil, types.NewError(code, "knowledge source "+src.Path).WithCause(err)
		}

		frag[key] = content
		all = append(all, content)
		l.logger.Info("knowledge source loaded",
			zap.String("key", key),
			zap.String("path", src.Path),
			zap.Int("documents", docs),
		)
	}

	if len(sources) > 0 {
		frag[AllKey] = strings.Join(all, "\n\n")
	}
	return frag, nil
}

// loadSource 读取单个文件或整个目录（按路径排序）
func (l *Loader) loadSource(ctx context.Context, path string) (string, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}

	files := []string{path}
	if info.IsDir() {
		files = files[:0]
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return "", 0, err
		}
		sort.Strings(files)
	}

	var parts []string
	count := 0
	for _, f := range files {
		docs, err := l.registry.Load(ctx, f)
		if err != nil {
			return "", 0, err
		}
		for _, d := range docs {
			parts = append(parts, d.Content)
		}
		count += len(docs)
	}
	return strings.Join(parts, "\n\n"), count, nil
}
