package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

const searchBaseURL = "https://api.bing.microsoft.com/v7.0/search"

// SearchClient queries the web search API for candidate sites.
type SearchClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSearchClient creates a search client reading its key from apiKeyEnv.
// An empty baseURL uses the public endpoint.
func NewSearchClient(apiKeyEnv, baseURL string) *SearchClient {
	if baseURL == "" {
		baseURL = searchBaseURL
	}
	return &SearchClient{
		apiKey:  os.Getenv(apiKeyEnv),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *SearchClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Search returns up to ten Japanese-market web results for query.
func (c *SearchClient) Search(ctx context.Context, query string) ([]Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("search API key not configured")
	}

	params := url.Values{
		"q":     {query},
		"count": {"10"},
		"mkt":   {"ja-JP"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search HTTP error: %d", resp.StatusCode)
	}

	var result struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}

	var out []Candidate
	for _, v := range result.WebPages.Value {
		if v.URL == "" || v.Name == "" {
			continue
		}
		out = append(out, Candidate{Name: v.Name, URL: v.URL, Description: v.Snippet, Source: "search"})
	}

	zap.S().Debugf("Search %q returned %d results", query, len(out))
	return out, nil
}
