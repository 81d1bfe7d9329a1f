// Package openaicompat implements llm.Generator against any service that
// speaks the OpenAI Chat Completions format.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com/v1",
//	    Model:        "deepseek-chat",
//	}, logger)
//	text, err := p.Generate(ctx, llm.GenerateRequest{Role: "Writer", Prompt: "..."})
package openaicompat
