package capability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/internal/httpjson"
	"github.com/BaSui01/crewflow/llm/retry"
	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI-compatible capabilities.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key" env:"OPENAI_API_KEY"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
	Size    string `yaml:"size" json:"size"`
}

func (c OpenAIConfig) withDefaults(model string) OpenAIConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

func (c OpenAIConfig) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.APIKey}
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// ImageGenerate returns the live image_generate capability. args["prompt"]
// is required; the output is the URL of the first generated image.
func ImageGenerate(cfg OpenAIConfig, client *http.Client, retryer retry.Retryer, logger *zap.Logger) Func {
	cfg = cfg.withDefaults("dall-e-3")
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	client, retryer = httpDefaults(client, retryer, logger)

	return func(ctx context.Context, args Args) (string, error) {
		prompt, err := requireArg(args, "prompt")
		if err != nil {
			return "", err
		}
		size := cfg.Size
		if s := strings.TrimSpace(args["size"]); s != "" {
			size = s
		}

		var resp imageResponse
		err = retryer.Do(ctx, func() error {
			resp = imageResponse{}
			return httpjson.PostJSON(ctx, client, httpjson.JoinURL(cfg.BaseURL, "images/generations"), cfg.headers(),
				imageRequest{Model: cfg.Model, Prompt: prompt, N: 1, Size: size}, &resp, "image_generate")
		})
		if err != nil {
			return "", err
		}
		if len(resp.Data) == 0 || resp.Data[0].URL == "" {
			return "", fmt.Errorf("image_generate: response contained no image")
		}
		return resp.Data[0].URL, nil
	}
}

type visionPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type visionMessage struct {
	Role    string       `json:"role"`
	Content []visionPart `json:"content"`
}

type visionRequest struct {
	Model    string          `json:"model"`
	Messages []visionMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// VisionOCR returns the live vision_ocr capability. args["image_url"] is
// required; args["instruction"] overrides the default extraction prompt.
func VisionOCR(cfg OpenAIConfig, client *http.Client, retryer retry.Retryer, logger *zap.Logger) Func {
	cfg = cfg.withDefaults("gpt-4o-mini")
	client, retryer = httpDefaults(client, retryer, logger)

	return func(ctx context.Context, args Args) (string, error) {
		imageURL, err := requireArg(args, "image_url")
		if err != nil {
			return "", err
		}
		instruction := args["instruction"]
		if instruction == "" {
			instruction = "Extract all text visible in this image. Return only the text."
		}

		image := visionPart{Type: "image_url", ImageURL: &struct {
			URL string `json:"url"`
		}{URL: imageURL}}
		body := visionRequest{
			Model: cfg.Model,
			Messages: []visionMessage{{
				Role:    "user",
				Content: []visionPart{{Type: "text", Text: instruction}, image},
			}},
		}

		var resp chatResponse
		err = retryer.Do(ctx, func() error {
			resp = chatResponse{}
			return httpjson.PostJSON(ctx, client, httpjson.JoinURL(cfg.BaseURL, "chat/completions"), cfg.headers(), body, &resp, "vision_ocr")
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("vision_ocr: response contained no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}

func httpDefaults(client *http.Client, retryer retry.Retryer, logger *zap.Logger) (*http.Client, retry.Retryer) {
	if client == nil {
		client = httpjson.SecureHTTPClient(60 * time.Second)
	}
	if retryer == nil {
		retryer = retry.NewBackoffRetryer(nil, logger)
	}
	return client, retryer
}
