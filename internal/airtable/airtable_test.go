package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	f.handler(w, r, body)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New("test-key", "appBASE",
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestApprovedEntitiesPaginates(t *testing.T) {
	api := &fakeAPI{}
	api.handler = func(w http.ResponseWriter, r *http.Request, _ []byte) {
		if r.URL.Path != "/appBASE/Sites" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("filterByFormula"); got != "{IsApproved} = TRUE()" {
			t.Errorf("unexpected formula %q", got)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		if r.URL.Query().Get("offset") == "" {
			writeJSON(w, map[string]any{
				"records": []map[string]any{
					{"id": "rec1", "fields": map[string]any{
						"Name": "競馬予想サイトA", "Slug": "site-a", "Category": "nankan",
						"IsApproved": true, "Reviews": []string{"r1", "r2", "r3"}, "AverageRating": 4.2,
					}},
				},
				"offset": "page2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"records": []map[string]any{
				{"id": "rec2", "fields": map[string]any{
					"Name": "中央競馬情報局", "Category": "chuo", "IsApproved": true, "ReviewCount": 23,
				}},
			},
		})
	}

	c := newTestClient(t, api)
	got, err := c.ApprovedEntities(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(got))
	}
	if got[0].ID != "rec1" || got[0].ReviewCount != 3 || got[0].Category != site.Nankan || got[0].AverageRating != 4.2 {
		t.Errorf("unexpected first entity %+v", got[0])
	}
	if got[1].ReviewCount != 23 || got[1].Category != site.Chuo {
		t.Errorf("unexpected second entity %+v", got[1])
	}
	if len(api.requests) != 2 {
		t.Errorf("expected 2 requests, got %d", len(api.requests))
	}
}

func TestCreateReview(t *testing.T) {
	api := &fakeAPI{}
	api.handler = func(w http.ResponseWriter, r *http.Request, body []byte) {
		if r.Method != http.MethodPost || r.URL.Path != "/appBASE/Reviews" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var payload recordsPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		f := payload.Records[0].Fields
		if f["Status"] != "pending" || f["IsApproved"] != false {
			t.Errorf("expected pending review, got %v", f)
		}
		if f["Rating"] != float64(3) || f["UserName"] != "南関ファン太郎07" {
			t.Errorf("unexpected fields %v", f)
		}
		linked, ok := f["Site"].([]any)
		if !ok || len(linked) != 1 || linked[0] != "rec1" {
			t.Errorf("expected linked site, got %v", f["Site"])
		}
		writeJSON(w, map[string]any{"records": []map[string]any{{"id": "recNEW", "fields": f}}})
	}

	c := newTestClient(t, api)
	id, err := c.CreateReview(context.Background(), store.NewReview{
		EntityID: "rec1", StarRating: 3, Title: "普通", Body: "本文", AuthorName: "南関ファン太郎07",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "recNEW" {
		t.Errorf("expected recNEW, got %q", id)
	}
}

func TestCreateReviewAPIError(t *testing.T) {
	api := &fakeAPI{}
	api.handler = func(w http.ResponseWriter, r *http.Request, _ []byte) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":{"type":"INVALID_VALUE_FOR_COLUMN"}}`)
	}

	c := newTestClient(t, api)
	_, err := c.CreateReview(context.Background(), store.NewReview{EntityID: "rec1", StarRating: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestUpdateRecordsRejectsOversizedBatch(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request, _ []byte) {
		t.Error("no request expected")
	}}
	c := newTestClient(t, api)

	updates := make([]store.RecordUpdate, store.MaxBatch+1)
	if _, err := c.UpdateRecords(context.Background(), store.TableSites, updates); err == nil {
		t.Error("expected error for oversized batch")
	}
}

func TestBatchUpdateThroughClient(t *testing.T) {
	api := &fakeAPI{}
	api.handler = func(w http.ResponseWriter, r *http.Request, body []byte) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		var payload recordsPayload
		json.Unmarshal(body, &payload)
		if len(payload.Records) > store.MaxBatch {
			t.Errorf("batch of %d exceeds limit", len(payload.Records))
		}
		writeJSON(w, map[string]any{"records": payload.Records})
	}
	c := newTestClient(t, api)

	var updates []store.RecordUpdate
	for i := 0; i < 21; i++ {
		updates = append(updates, store.RecordUpdate{
			ID:     fmt.Sprintf("rec%d", i),
			Fields: map[string]any{"SiteQuality": "normal", "DisplayPriority": i},
		})
	}
	res := store.BatchUpdate(context.Background(), c, store.TableSites, updates, nil)
	if res.Updated != 21 || len(res.Errors) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(api.requests) != 3 {
		t.Errorf("expected 3 requests, got %d", len(api.requests))
	}
}

func TestSiteExistsEscapesFormula(t *testing.T) {
	api := &fakeAPI{}
	api.handler = func(w http.ResponseWriter, r *http.Request, _ []byte) {
		q := r.URL.Query()
		if q.Get("filterByFormula") != `{URL} = 'https://example.com/it\'s'` {
			t.Errorf("unexpected formula %q", q.Get("filterByFormula"))
		}
		if q.Get("maxRecords") != "1" {
			t.Errorf("expected maxRecords=1")
		}
		writeJSON(w, map[string]any{"records": []map[string]any{{"id": "rec1", "fields": map[string]any{}}}})
	}
	c := newTestClient(t, api)

	ok, err := c.SiteExists(context.Background(), "https://example.com/it's")
	if err != nil || !ok {
		t.Errorf("expected existing site, got %v %v", ok, err)
	}
}

func TestCreateSiteTruncates(t *testing.T) {
	api := &fakeAPI{}
	var fields map[string]any
	api.handler = func(w http.ResponseWriter, r *http.Request, body []byte) {
		var payload recordsPayload
		json.Unmarshal(body, &payload)
		fields = payload.Records[0].Fields
		writeJSON(w, map[string]any{"records": []map[string]any{{"id": "recS", "fields": fields}}})
	}
	c := newTestClient(t, api)

	long := make([]rune, 150)
	for i := range long {
		long[i] = '馬'
	}
	id, err := c.CreateSite(context.Background(), site.Entity{Name: string(long), URL: "https://x.example", Category: site.Chihou})
	if err != nil || id != "recS" {
		t.Fatalf("unexpected result %q %v", id, err)
	}
	if n := len([]rune(fields["Name"].(string))); n != 100 {
		t.Errorf("expected name truncated to 100 runes, got %d", n)
	}
	if fields["IsApproved"] != false {
		t.Error("expected new site to be unapproved")
	}
}
