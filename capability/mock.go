package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MockWebSearch returns deterministic search output.
func MockWebSearch() Func {
	return func(_ context.Context, args Args) (string, error) {
		query, err := requireArg(args, "query")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("mock web_search results for %q", query), nil
	}
}

// MockImageGenerate returns a stable fake URL derived from the prompt.
func MockImageGenerate() Func {
	return func(_ context.Context, args Args) (string, error) {
		prompt, err := requireArg(args, "prompt")
		if err != nil {
			return "", err
		}
		sum := sha256.Sum256([]byte(prompt))
		return "https://mock.invalid/images/" + hex.EncodeToString(sum[:6]) + ".png", nil
	}
}

// MockVisionOCR returns deterministic extracted text.
func MockVisionOCR() Func {
	return func(_ context.Context, args Args) (string, error) {
		url, err := requireArg(args, "image_url")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("mock text extracted from %s", url), nil
	}
}
