package knowledge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSONLoaderConfig configures the JSON/JSONL loader.
type JSONLoaderConfig struct {
	// ContentField is the JSON field name to use as Document.Content.
	// If empty or missing, the object is serialized as indented JSON.
	ContentField string
}

// JSONLoader loads JSON (single object or array) and JSONL files.
type JSONLoader struct {
	config JSONLoaderConfig
}

// NewJSONLoader creates a JSONLoader.
func NewJSONLoader(config JSONLoaderConfig) *JSONLoader {
	return &JSONLoader{config: config}
}

// Load reads a JSON or JSONL file and returns Documents.
func (l *JSONLoader) Load(ctx context.Context, source string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(source)) == ".jsonl" {
		return l.loadJSONL(source)
	}
	return l.loadJSON(source)
}

func (l *JSONLoader) loadJSON(source string) ([]Document, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("json loader: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []Document{}, nil
	}

	if trimmed[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, fmt.Errorf("json loader: parsing array in %s: %w", source, err)
		}
		return l.objectsToDocs(source, items)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("json loader: parsing object in %s: %w", source, err)
	}
	return l.objectsToDocs(source, []map[string]any{obj})
}

func (l *JSONLoader) loadJSONL(source string) ([]Document, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("jsonl loader: %w", err)
	}
	defer f.Close()

	var items []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("jsonl loader: parsing line %d in %s: %w", line, source, err)
		}
		items = append(items, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonl loader: reading %s: %w", source, err)
	}
	return l.objectsToDocs(source, items)
}

func (l *JSONLoader) objectsToDocs(source string, items []map[string]any) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for i, item := range items {
		content, ok := "", false
		if l.config.ContentField != "" {
			content, ok = item[l.config.ContentField].(string)
		}
		if !ok {
			data, err := json.MarshalIndent(item, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("json loader: encoding item %d of %s: %w", i, source, err)
			}
			content = string(data)
		}
		docs = append(docs, Document{
			ID:      fmt.Sprintf("%s#%d", source, i),
			Content: content,
			Metadata: map[string]any{
				"source_file":  filepath.Base(source),
				"content_type": "application/json",
				"index":        i,
			},
		})
	}
	return docs, nil
}

// SupportedTypes returns the extensions handled by JSONLoader.
func (l *JSONLoader) SupportedTypes() []string {
	return []string{".json", ".jsonl"}
}
