package capability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/internal/httpjson"
	"github.com/BaSui01/crewflow/llm/retry"
	"go.uber.org/zap"
)

// DefaultSerperURL is the default search endpoint.
const DefaultSerperURL = "https://google.serper.dev/search"

// WebSearchConfig configures the live web_search capability.
type WebSearchConfig struct {
	APIKey     string `yaml:"api_key" json:"api_key" env:"SERPER_API_KEY"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
	MaxResults int    `yaml:"max_results" json:"max_results"`
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox,omitempty"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date,omitempty"`
	} `json:"organic"`
}

// WebSearch returns the live web_search capability. args["query"] is
// required, args["max_results"] optional.
func WebSearch(cfg WebSearchConfig, client *http.Client, retryer retry.Retryer, logger *zap.Logger) Func {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSerperURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if client == nil {
		client = httpjson.SecureHTTPClient(30 * time.Second)
	}
	if retryer == nil {
		retryer = retry.NewBackoffRetryer(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, args Args) (string, error) {
		query, err := requireArg(args, "query")
		if err != nil {
			return "", err
		}
		num := cfg.MaxResults
		if raw := args["max_results"]; raw != "" {
			if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
				num = n
			}
		}

		logger.Debug("executing web search", zap.String("query", query), zap.Int("max_results", num))

		var resp serperResponse
		err = retryer.Do(ctx, func() error {
			resp = serperResponse{}
			return httpjson.PostJSON(ctx, client, cfg.BaseURL,
				map[string]string{"X-API-KEY": cfg.APIKey},
				serperRequest{Query: query, Num: num}, &resp, "web_search")
		})
		if err != nil {
			return "", err
		}
		return formatSearchResults(query, resp, num), nil
	}
}

func formatSearchResults(query string, resp serperResponse, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	if resp.AnswerBox != nil {
		answer := resp.AnswerBox.Answer
		if answer == "" {
			answer = resp.AnswerBox.Snippet
		}
		if answer != "" {
			fmt.Fprintf(&b, "Answer: %s\n", answer)
		}
	}
	for i, r := range resp.Organic {
		if i >= limit {
			break
		}
		b.WriteString("---\n")
		fmt.Fprintf(&b, "Title: %s\nLink: %s\nSnippet: %s\n", r.Title, r.Link, r.Snippet)
		if r.Date != "" {
			fmt.Fprintf(&b, "Date: %s\n", r.Date)
		}
	}
	if len(resp.Organic) == 0 {
		b.WriteString("No results found.\n")
	}
	return b.String()
}
