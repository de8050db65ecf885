package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/keibareview/internal/config"
	"github.com/TobiSchelling/keibareview/internal/site"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name, desc, url string
		want            site.Category
	}{
		{"大井競馬の達人", "", "https://a.example", site.Nankan},
		{"競馬予想", "nankan specialist", "https://b.example", site.Nankan},
		{"JRA攻略", "", "https://c.example", site.Chuo},
		{"予想", "園田と金沢", "https://d.example", site.Chihou},
		{"予想", "", "https://nar-keiba.example", site.Chihou},
		{"競馬予想 口コミ", "", "https://e.example", site.Other},
		// nankan is checked first
		{"南関とJRA", "", "https://f.example", site.Nankan},
	}
	for _, tt := range tests {
		if got := Categorize(tt.name, tt.desc, tt.url); got != tt.want {
			t.Errorf("Categorize(%q, %q, %q) = %s, want %s", tt.name, tt.desc, tt.url, got, tt.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"https://www.keiba-ai.jp/top":  "keiba-ai-jp",
		"https://Nankan.Example.com":   "nankan-example-com",
		"http://sub.keiba_site.net/x": "sub-keibasite-net",
		"not a url":                   "",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeRegistry struct {
	existing map[string]bool
	failURL  string
	created  []site.Entity
}

func (f *fakeRegistry) SiteExists(_ context.Context, url string) (bool, error) {
	return f.existing[url], nil
}

func (f *fakeRegistry) CreateSite(_ context.Context, e site.Entity) (string, error) {
	if e.URL == f.failURL {
		return "", errors.New("422")
	}
	f.created = append(f.created, e)
	return fmt.Sprintf("rec%d", len(f.created)), nil
}

type fakeDescriber struct{ calls int }

func (f *fakeDescriber) Describe(context.Context, string) (string, error) {
	f.calls++
	return "地方競馬の予想サイト", nil
}

func searchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "search-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("mkt") != "ja-JP" {
			t.Errorf("expected ja-JP market")
		}
		switch r.URL.Query().Get("q") {
		case "南関":
			fmt.Fprint(w, `{"webPages":{"value":[
				{"name":"南関予想ナビ","url":"https://nankan-navi.example/","snippet":"大井・川崎の予想"},
				{"name":"既存サイト","url":"https://old.example/","snippet":""},
				{"name":"","url":"https://noname.example/"}
			]}}`)
		default:
			fmt.Fprint(w, `{"webPages":{"value":[
				{"name":"南関予想ナビ","url":"https://nankan-navi.example/","snippet":"重複"},
				{"name":"穴馬ドットコム","url":"https://anauma.example/","snippet":""}
			]}}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCollectRegistersNewSites(t *testing.T) {
	srv := searchServer(t)
	t.Setenv("KEIBAREVIEW_SEARCH_KEY", "search-key")

	reg := &fakeRegistry{existing: map[string]bool{"https://old.example/": true}}
	desc := &fakeDescriber{}
	c := NewCollector(config.Discovery{
		SearchKeyEnv: "KEIBAREVIEW_SEARCH_KEY",
		SearchURL:    srv.URL,
		Queries:      []string{"南関", "予想"},
		Pause:        time.Millisecond,
	}, reg, desc)

	r := c.Collect(context.Background())

	if r.TotalFound != 4 {
		t.Errorf("expected 4 candidates, got %d", r.TotalFound)
	}
	if r.Duplicates != 1 || r.Existing != 1 || r.Added != 2 {
		t.Errorf("unexpected result %+v", r)
	}
	if len(reg.created) != 2 {
		t.Fatalf("expected 2 sites created, got %d", len(reg.created))
	}
	first := reg.created[0]
	if first.Category != site.Nankan || first.Slug != "nankan-navi-example" || first.Approved {
		t.Errorf("unexpected first site %+v", first)
	}
	second := reg.created[1]
	if second.Description != "地方競馬の予想サイト" || second.Category != site.Chihou {
		t.Errorf("expected described and categorized site, got %+v", second)
	}
	if desc.calls != 1 {
		t.Errorf("expected describer only for empty snippets, got %d calls", desc.calls)
	}
}

func TestCollectDryRun(t *testing.T) {
	srv := searchServer(t)
	t.Setenv("KEIBAREVIEW_SEARCH_KEY", "search-key")

	reg := &fakeRegistry{}
	c := NewCollector(config.Discovery{
		SearchKeyEnv: "KEIBAREVIEW_SEARCH_KEY",
		SearchURL:    srv.URL,
		Queries:      []string{"南関"},
	}, reg, nil).DryRun(true)

	r := c.Collect(context.Background())
	if len(reg.created) != 0 {
		t.Errorf("expected no writes in dry run, got %d", len(reg.created))
	}
	if r.Added != 1 {
		t.Errorf("expected 1 site reported, got %d", r.Added)
	}
}

func TestCollectWithoutKeySkipsSearch(t *testing.T) {
	t.Setenv("KEIBAREVIEW_SEARCH_KEY", "")
	reg := &fakeRegistry{}
	c := NewCollector(config.Discovery{SearchKeyEnv: "KEIBAREVIEW_SEARCH_KEY", Queries: []string{"x"}}, reg, nil)

	r := c.Collect(context.Background())
	if r.TotalFound != 0 || len(reg.created) != 0 {
		t.Errorf("expected nothing collected, got %+v", r)
	}
}

func TestCollectFromFeed(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>予想サイト新着</title>
<item><title>JRA予想ラボ</title><link>https://jra-lab.example/</link>
<description>&lt;p&gt;中央競馬の&lt;b&gt;重賞&lt;/b&gt;予想&lt;/p&gt;</description></item>
<item><title></title><link>https://untitled.example/</link></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
	t.Cleanup(srv.Close)

	reg := &fakeRegistry{failURL: ""}
	c := NewCollector(config.Discovery{Feeds: []config.Feed{{URL: srv.URL, Name: "new-sites"}}}, reg, nil)
	r := c.Collect(context.Background())

	if r.Added != 1 || len(reg.created) != 1 {
		t.Fatalf("expected 1 site from feed, got %+v", r)
	}
	got := reg.created[0]
	if got.Category != site.Chuo {
		t.Errorf("expected chuo, got %s", got.Category)
	}
	if strings.Contains(got.Description, "<") || got.Description != "中央競馬の 重賞 予想" {
		t.Errorf("expected stripped description, got %q", got.Description)
	}
}

func TestCollectCountsFailedWrites(t *testing.T) {
	srv := searchServer(t)
	t.Setenv("KEIBAREVIEW_SEARCH_KEY", "search-key")

	reg := &fakeRegistry{failURL: "https://nankan-navi.example/"}
	c := NewCollector(config.Discovery{
		SearchKeyEnv: "KEIBAREVIEW_SEARCH_KEY",
		SearchURL:    srv.URL,
		Queries:      []string{"南関"},
	}, reg, nil)

	r := c.Collect(context.Background())
	if r.Failed != 1 {
		t.Errorf("expected 1 failed write, got %+v", r)
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML("<p>大井&amp;川崎</p>  <br/>予想")
	if got != "大井&川崎 予想" {
		t.Errorf("unexpected %q", got)
	}
}

func TestExtractSourceName(t *testing.T) {
	if got := extractSourceName("https://news.netkeiba.com/?pid=news_rss"); got != "Netkeiba" {
		t.Errorf("unexpected %q", got)
	}
}
