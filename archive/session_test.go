package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/BaSui01/crewflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewManager(DefaultConfig(), nil, zap.NewNop()).NewSession("run-test")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// ============================================================
// RotateAndWrite
// ============================================================

func TestRotateAndWrite_RepeatedSinkRotatesOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "old")
	sink := filepath.Join(dir, "out.txt")

	s := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.RotateAndWrite(ctx, sink, "v1"))
	require.NoError(t, s.RotateAndWrite(ctx, sink, "v2"))

	assert.Equal(t, "v2", readFile(t, sink))

	archived := listNames(t, filepath.Join(dir, DefaultFolder))
	assert.Equal(t, []string{"a.txt", "out.txt"}, archived)
	assert.Equal(t, "old", readFile(t, filepath.Join(dir, DefaultFolder, "a.txt")))
	assert.Equal(t, "v1", readFile(t, filepath.Join(dir, DefaultFolder, "out.txt")))
	assert.Equal(t, 2, s.Written(sink))
}

func TestRotateAndWrite_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	sink := filepath.Join(t.TempDir(), "posts", "Instagram", "post.txt")
	s := newTestSession(t)

	require.NoError(t, s.RotateAndWrite(context.Background(), sink, "hello"))
	assert.Equal(t, "hello", readFile(t, sink))
	assert.NoDirExists(t, filepath.Join(filepath.Dir(sink), DefaultFolder))
}

func TestRotateAndWrite_NamedFolderAndCollision(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old posts", "post.txt"), "ancient")
	writeFile(t, filepath.Join(dir, "post.txt"), "previous")

	s := newTestSession(t)
	sink := filepath.Join(dir, "post 2024-05-01 10-00-00.txt")
	require.NoError(t, s.RotateAndWrite(context.Background(), sink, "fresh", WithFolder("old posts")))

	assert.Equal(t, []string{"post-1.txt", "post.txt"}, listNames(t, filepath.Join(dir, "old posts")))
	assert.Equal(t, "ancient", readFile(t, filepath.Join(dir, "old posts", "post.txt")))
	assert.Equal(t, "previous", readFile(t, filepath.Join(dir, "old posts", "post-1.txt")))
	assert.Equal(t, "fresh", readFile(t, sink))
}

func TestRotateAndWrite_SubdirectoriesStay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nested", "keep.txt"), "nested")
	writeFile(t, filepath.Join(dir, "top.txt"), "top")

	s := newTestSession(t)
	require.NoError(t, s.RotateAndWrite(context.Background(), filepath.Join(dir, "new.txt"), "n"))

	assert.Equal(t, "nested", readFile(t, filepath.Join(dir, "nested", "keep.txt")))
	assert.Equal(t, []string{"top.txt"}, listNames(t, filepath.Join(dir, DefaultFolder)))
}

func TestRotateAndWrite_SiblingSinksInSameRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "yesterday.txt"), "y")

	s := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.RotateAndWrite(ctx, filepath.Join(dir, "post.txt"), "post"))
	require.NoError(t, s.RotateAndWrite(ctx, filepath.Join(dir, "picture.txt"), "picture"))

	assert.Equal(t, "post", readFile(t, filepath.Join(dir, "post.txt")))
	assert.Equal(t, "picture", readFile(t, filepath.Join(dir, "picture.txt")))
	assert.Equal(t, []string{"yesterday.txt"}, listNames(t, filepath.Join(dir, DefaultFolder)))
}

func TestRotateAndWrite_NewRunRotatesPreviousOutputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink := filepath.Join(dir, "report.md")
	manager := NewManager(DefaultConfig(), nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, manager.NewSession("run-1").RotateAndWrite(ctx, sink, "first"))
	require.NoError(t, manager.NewSession("run-2").RotateAndWrite(ctx, sink, "second"))

	assert.Equal(t, "second", readFile(t, sink))
	assert.Equal(t, "first", readFile(t, filepath.Join(dir, DefaultFolder, "report.md")))
}

func TestRotateAndWrite_Errors(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	ctx := context.Background()

	err := s.RotateAndWrite(ctx, "  ", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptySink)
	assert.Equal(t, types.ErrArchive, types.GetErrorCode(err))

	// 父路径是普通文件，目录无法创建
	blocker := filepath.Join(t.TempDir(), "blocker")
	writeFile(t, blocker, "file")
	err = s.RotateAndWrite(ctx, filepath.Join(blocker, "out.txt"), "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrArchive, types.GetErrorCode(err))

	err = s.RotateAndWrite(ctx, filepath.Join(t.TempDir(), "out.txt"), "x", WithFolder("../escape"))
	require.Error(t, err)
	assert.Equal(t, types.ErrArchive, types.GetErrorCode(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.RotateAndWrite(cancelled, filepath.Join(t.TempDir(), "out.txt"), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRotateAndWrite_ConcurrentSinksInOneDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "legacy.txt"), "legacy")
	s := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sink := filepath.Join(dir, fmt.Sprintf("sink-%d.txt", i))
			assert.NoError(t, s.RotateAndWrite(context.Background(), sink, fmt.Sprintf("content-%d", i)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		assert.Equal(t, fmt.Sprintf("content-%d", i), readFile(t, filepath.Join(dir, fmt.Sprintf("sink-%d.txt", i))))
	}
	assert.Equal(t, []string{"legacy.txt"}, listNames(t, filepath.Join(dir, DefaultFolder)))
	assert.Len(t, s.Records(), 8)
}

// ============================================================
// Property: nothing written or pre-existing is ever lost
// ============================================================

func TestProperty_RotateAndWrite_NoContentLost(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "archive-prop-*")
		require.NoError(rt, err)
		defer os.RemoveAll(dir)

		expected := map[string]int{}

		preExisting := rapid.IntRange(0, 4).Draw(rt, "preExisting")
		for i := 0; i < preExisting; i++ {
			content := fmt.Sprintf("pre-%d", i)
			require.NoError(rt, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), []byte(content), 0o644))
			expected[content]++
		}

		s := NewManager(DefaultConfig(), nil, nil).NewSession("prop")
		writes := rapid.IntRange(1, 8).Draw(rt, "writes")
		last := map[string]string{}
		for i := 0; i < writes; i++ {
			sinkIdx := rapid.IntRange(0, 2).Draw(rt, fmt.Sprintf("sink_%d", i))
			sink := filepath.Join(dir, fmt.Sprintf("sink%d.txt", sinkIdx))
			content := fmt.Sprintf("w-%d", i)
			require.NoError(rt, s.RotateAndWrite(context.Background(), sink, content))
			expected[content]++
			last[sink] = content
		}

		got := map[string]int{}
		for _, d := range []string{dir, filepath.Join(dir, DefaultFolder)} {
			entries, err := os.ReadDir(d)
			if os.IsNotExist(err) {
				continue
			}
			require.NoError(rt, err)
			for _, e := range entries {
				if !e.Type().IsRegular() {
					continue
				}
				data, err := os.ReadFile(filepath.Join(d, e.Name()))
				require.NoError(rt, err)
				got[string(data)]++
			}
		}

		assert.Equal(rt, expected, got)
		for sink, content := range last {
			data, err := os.ReadFile(sink)
			require.NoError(rt, err)
			assert.Equal(rt, content, string(data))
		}
	})
}
