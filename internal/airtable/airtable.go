// Package airtable implements store.Store against the Airtable REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/metrics"
	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.airtable.com/v0"

const (
	approvedFormula = "{IsApproved} = TRUE()"
	maxNameRunes    = 100
	maxDescRunes    = 500
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airtable: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Client talks to one Airtable base.
type Client struct {
	baseURL string
	baseID  string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLimiter replaces the request pacing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a client. Requests are paced to the API's five per second
// limit and stop for 30s after five consecutive transport or server errors.
func New(apiKey, baseID string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		baseID:  baseID,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, o := range opts {
		o(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "airtable",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
	})
	return c
}

type record struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type recordsPayload struct {
	Records  []record `json:"records"`
	Typecast bool     `json:"typecast,omitempty"`
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset"`
}

// ApprovedEntities lists every approved site, following pagination.
func (c *Client) ApprovedEntities(ctx context.Context) ([]site.Entity, error) {
	records, err := c.list(ctx, store.TableSites, approvedFormula, 0)
	if err != nil {
		return nil, fmt.Errorf("listing approved sites: %w", err)
	}
	out := make([]site.Entity, 0, len(records))
	for _, r := range records {
		out = append(out, entityFromRecord(r))
	}
	return out, nil
}

// CreateReview creates one review linked to its site.
func (c *Client) CreateReview(ctx context.Context, r store.NewReview) (string, error) {
	status := "pending"
	if r.AutoApprove {
		status = "approved"
	}
	fields := map[string]any{
		"Site":       []string{r.EntityID},
		"UserName":   r.AuthorName,
		"Rating":     r.StarRating,
		"Title":      r.Title,
		"Content":    r.Body,
		"Status":     status,
		"IsApproved": r.AutoApprove,
		"CreatedAt":  time.Now().UTC().Format(time.RFC3339),
	}
	return c.createOne(ctx, store.TableReviews, fields)
}

// UpdateRecords patches at most store.MaxBatch records in one request.
func (c *Client) UpdateRecords(ctx context.Context, table string, updates []store.RecordUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	if len(updates) > store.MaxBatch {
		return 0, fmt.Errorf("airtable: %d records exceeds batch limit of %d", len(updates), store.MaxBatch)
	}

	payload := recordsPayload{Typecast: true}
	for _, u := range updates {
		payload.Records = append(payload.Records, record{ID: u.ID, Fields: u.Fields})
	}

	body, err := c.do(ctx, http.MethodPatch, table, nil, payload)
	if err != nil {
		return 0, err
	}
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding update response: %w", err)
	}
	return len(resp.Records), nil
}

// SiteExists reports whether a site with this URL is already listed.
func (c *Client) SiteExists(ctx context.Context, siteURL string) (bool, error) {
	formula := fmt.Sprintf("{URL} = '%s'", escapeFormula(siteURL))
	records, err := c.list(ctx, store.TableSites, formula, 1)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// CreateSite registers a discovered site as unapproved.
func (c *Client) CreateSite(ctx context.Context, e site.Entity) (string, error) {
	fields := map[string]any{
		"Name":          truncate(e.Name, maxNameRunes),
		"Slug":          e.Slug,
		"URL":           e.URL,
		"Category":      string(e.Category),
		"Description":   truncate(e.Description, maxDescRunes),
		"IsApproved":    false,
		"ReviewCount":   0,
		"AverageRating": 0,
	}
	return c.createOne(ctx, store.TableSites, fields)
}

func (c *Client) createOne(ctx context.Context, table string, fields map[string]any) (string, error) {
	payload := recordsPayload{Records: []record{{Fields: fields}}, Typecast: true}
	body, err := c.do(ctx, http.MethodPost, table, nil, payload)
	if err != nil {
		return "", err
	}
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	if len(resp.Records) == 0 || resp.Records[0].ID == "" {
		return "", errors.New("airtable: create returned no record")
	}
	return resp.Records[0].ID, nil
}

func (c *Client) list(ctx context.Context, table, formula string, maxRecords int) ([]record, error) {
	var all []record
	offset := ""
	for {
		q := url.Values{}
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		if maxRecords > 0 {
			q.Set("maxRecords", strconv.Itoa(maxRecords))
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		body, err := c.do(ctx, http.MethodGet, table, q, nil)
		if err != nil {
			return nil, err
		}
		var page listResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding %s page: %w", table, err)
		}
		all = append(all, page.Records...)

		if page.Offset == "" || (maxRecords > 0 && len(all) >= maxRecords) {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, table, query, payload)
	})
}

func (c *Client) roundTrip(ctx context.Context, method, table string, query url.Values, payload any) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncStoreRequest(method, "error")
		return nil, err
	}
	defer resp.Body.Close()
	metrics.IncStoreRequest(method, fmt.Sprintf("%dxx", resp.StatusCode/100))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func entityFromRecord(r record) site.Entity {
	e := site.Entity{
		ID:          r.ID,
		Name:        stringField(r.Fields, "Name"),
		Slug:        stringField(r.Fields, "Slug"),
		URL:         stringField(r.Fields, "URL"),
		Category:    site.ParseCategory(stringField(r.Fields, "Category")),
		Description: stringField(r.Fields, "Description"),
	}
	if b, ok := r.Fields["IsApproved"].(bool); ok {
		e.Approved = b
	}
	if n, ok := numberField(r.Fields, "ReviewCount"); ok {
		e.ReviewCount = int(n)
	} else if linked, ok := r.Fields["Reviews"].([]any); ok {
		e.ReviewCount = len(linked)
	}
	if avg, ok := numberField(r.Fields, "AverageRating"); ok {
		e.AverageRating = avg
	}
	return e
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func escapeFormula(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
