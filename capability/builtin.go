package capability

import (
	"net/http"
	"time"

	"github.com/BaSui01/crewflow/llm/retry"
	"go.uber.org/zap"
)

// Built-in capability names.
const (
	NameWebSearch     = "web_search"
	NameFileRead      = "file_read"
	NameDirectoryRead = "directory_read"
	NameImageGenerate = "image_generate"
	NameVisionOCR     = "vision_ocr"
)

// BuiltinConfig configures RegisterBuiltins.
type BuiltinConfig struct {
	WebSearch  WebSearchConfig
	OpenAI     OpenAIConfig
	Timeout    time.Duration
	CacheTTL   time.Duration
	RateLimits map[string]RateLimitConfig
	Retry      *retry.RetryPolicy
	HTTPClient *http.Client
}

// RegisterBuiltins registers the built-in capabilities using the live or
// mock implementation selected by the registry mode. Network capabilities
// whose credentials are missing are skipped in live mode, so a crew that
// references them fails its build with UNKNOWN_CAPABILITY.
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	retryer := retry.NewBackoffRetryer(cfg.Retry, logger)

	meta := func(desc string, cacheable bool, name string) Metadata {
		m := Metadata{Description: desc, Timeout: cfg.Timeout, Cacheable: cacheable, CacheTTL: cfg.CacheTTL}
		if rl, ok := cfg.RateLimits[name]; ok {
			m.RateLimit = &rl
		}
		return m
	}

	type builtin struct {
		name      string
		desc      string
		cacheable bool
		live      Func
		mock      Func
	}

	var webSearch, imageGen, vision Func
	if cfg.WebSearch.APIKey != "" {
		webSearch = WebSearch(cfg.WebSearch, cfg.HTTPClient, retryer, logger)
	}
	if cfg.OpenAI.APIKey != "" {
		imageGen = ImageGenerate(cfg.OpenAI, cfg.HTTPClient, retryer, logger)
		vision = VisionOCR(cfg.OpenAI, cfg.HTTPClient, retryer, logger)
	}

	builtins := []builtin{
		{NameWebSearch, "Search the web and return the top results", true, webSearch, MockWebSearch()},
		{NameFileRead, "Read a local file", false, FileRead(), FileRead()},
		{NameDirectoryRead, "Concatenate every file under a directory", false, DirectoryRead(), DirectoryRead()},
		{NameImageGenerate, "Generate an image and return its URL", false, imageGen, MockImageGenerate()},
		{NameVisionOCR, "Extract text from an image URL", true, vision, MockVisionOCR()},
	}

	for _, b := range builtins {
		fn := b.live
		if reg.Mode() == ModeMock {
			fn = b.mock
		}
		if fn == nil {
			logger.Warn("capability not registered: credentials missing", zap.String("name", b.name))
			continue
		}
		if err := reg.Register(b.name, fn, meta(b.desc, b.cacheable, b.name)); err != nil {
			return err
		}
	}
	return nil
}
