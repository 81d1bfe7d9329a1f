package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/crewflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ====================================================================
// Individual loaders
// ====================================================================

func TestTextLoader(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, t.TempDir(), "notes.txt", "plain notes")

	docs, err := NewTextLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "plain notes", docs[0].Content)
	assert.Equal(t, "notes.txt", docs[0].Metadata["source_file"])
}

func TestMarkdownLoader_SplitsByHeading(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, t.TempDir(), "guide.md", "intro line\n# Tone\nbe brief\n## Format\nbullets\n#hashtag not a heading")

	docs, err := NewMarkdownLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "intro line", docs[0].Content)
	assert.Equal(t, "# Tone\nbe brief", docs[1].Content)
	assert.Equal(t, "Tone", docs[1].Metadata["heading"])
	assert.Equal(t, "## Format\nbullets\n#hashtag not a heading", docs[2].Content)
}

func TestCSVLoader_RowsAsFields(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, t.TempDir(), "tickers.csv", "symbol,name\nAAPL,Apple\nMSFT,Microsoft\n")

	docs, err := NewCSVLoader(CSVLoaderConfig{}).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "symbol: AAPL\nname: Apple", docs[0].Content)
}

func TestJSONLoader_ArrayObjectAndLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	loader := NewJSONLoader(JSONLoaderConfig{ContentField: "text"})

	docs, err := loader.Load(context.Background(), writeTemp(t, dir, "a.json", `[{"text":"one"},{"text":"two"}]`))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "two", docs[1].Content)

	docs, err = loader.Load(context.Background(), writeTemp(t, dir, "b.json", `{"other":1}`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, `"other": 1`)

	docs, err = loader.Load(context.Background(), writeTemp(t, dir, "c.jsonl", "{\"text\":\"x\"}\n\n{\"text\":\"y\"}\n"))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	_, err = loader.Load(context.Background(), writeTemp(t, dir, "bad.jsonl", "{nope"))
	require.Error(t, err)
}

func TestLoaderRegistry_FallbackToText(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, t.TempDir(), "README", "no extension")

	docs, err := NewLoaderRegistry().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "no extension", docs[0].Content)
	assert.Contains(t, NewLoaderRegistry().SupportedTypes(), ".jsonl")
}

func TestLoaders_RespectCancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, l := range []DocumentLoader{NewTextLoader(), NewMarkdownLoader(), NewCSVLoader(CSVLoaderConfig{}), NewJSONLoader(JSONLoaderConfig{})} {
		_, err := l.Load(ctx, "whatever")
		assert.ErrorIs(t, err, context.Canceled)
	}
}

// ====================================================================
// Loader
// ====================================================================

func TestLoader_LoadFragment(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	style := writeTemp(t, dir, "Style Guide.md", "# Voice\nfriendly")
	facts := writeTemp(t, dir, "facts.txt", "the sky is blue")

	l := NewLoader(nil, zaptest.NewLogger(t))
	frag, err := l.Load(context.Background(), []Source{
		{Path: style},
		{Name: "facts", Path: facts},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"knowledge", "knowledge.facts", "knowledge.style_guide"}, frag.Keys())
	assert.Equal(t, "# Voice\nfriendly", frag["knowledge.style_guide"])
	assert.Equal(t, "# Voice\nfriendly\n\nthe sky is blue", frag[AllKey])
}

func TestLoader_DirectorySource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTemp(t, dir, "kb/b.txt", "second")
	writeTemp(t, dir, "kb/a.txt", "first")
	writeTemp(t, dir, "kb/nested/c.txt", "third")

	frag, err := NewLoader(nil, nil).Load(context.Background(), []Source{{Name: "kb", Path: filepath.Join(dir, "kb")}})
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\nthird", frag["knowledge.kb"])
}

func TestLoader_MissingSourceIsFatal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ok := writeTemp(t, dir, "ok.txt", "fine")

	_, err := NewLoader(nil, nil).Load(context.Background(), []Source{
		{Path: ok},
		{Path: filepath.Join(dir, "missing.txt")},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrKnowledgeMissing, types.GetErrorCode(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_DuplicateNames(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := writeTemp(t, dir, "a/notes.txt", "a")
	b := writeTemp(t, dir, "b/notes.txt", "b")

	_, err := NewLoader(nil, nil).Load(context.Background(), []Source{{Path: a}, {Path: b}})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}

func TestLoader_NoSources(t *testing.T) {
	t.Parallel()
	frag, err := NewLoader(nil, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, frag)
}
