package capability

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileRead returns the file_read capability: args["path"] is read whole.
func FileRead() Func {
	return func(ctx context.Context, args Args) (string, error) {
		path, err := requireArg(args, "path")
		if err != nil {
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("file_read: %w", err)
		}
		return string(data), nil
	}
}

// DirectoryRead returns the directory_read capability. Every regular file
// under args["dir"] is concatenated in path order. args["exclude"] is a
// comma separated list of folder names to skip (e.g. "archive,old posts").
func DirectoryRead() Func {
	return func(ctx context.Context, args Args) (string, error) {
		dir, err := requireArg(args, "dir")
		if err != nil {
			return "", err
		}
		var exclude []string
		if raw := strings.TrimSpace(args["exclude"]); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				if name = strings.TrimSpace(name); name != "" {
					exclude = append(exclude, name)
				}
			}
		}
		return ReadDirectory(ctx, dir, exclude...)
	}
}

// ReadDirectory concatenates the regular files under dir, each preceded by
// a "== <relative path> ==" header line.
func ReadDirectory(ctx context.Context, dir string, exclude ...string) (string, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if _, ok := skip[d.Name()]; ok && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("directory_read: %w", err)
	}
	sort.Strings(files)

	var b strings.Builder
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("directory_read: %w", err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("== ")
		b.WriteString(filepath.ToSlash(rel))
		b.WriteString(" ==\n")
		b.Write(data)
	}
	return b.String(), nil
}
