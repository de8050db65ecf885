// Package server serves the public leaderboard and the ranking API used by
// share cards.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/keibareview/internal/metrics"
	"github.com/TobiSchelling/keibareview/internal/ranking"
	"github.com/TobiSchelling/keibareview/internal/site"
	"github.com/TobiSchelling/keibareview/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Server is the HTTP server for the leaderboard.
type Server struct {
	src   store.EntitySource
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server reading sites from src.
func New(src store.EntitySource) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{src: src, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /category/{category}", s.handleCategory)
	s.mux.HandleFunc("GET /api/ranking/{slug}", s.handleRanking)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	entities, err := s.src.ApprovedEntities(r.Context())
	if err != nil {
		zap.S().Errorf("Loading sites: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Title":      "総合ランキング",
		"Table":      leaderboardMarkdown(entities, ranking.Rank(ranking.FromEntities(entities))),
		"Categories": site.Categories,
	})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	category := site.ParseCategory(r.PathValue("category"))
	if string(category) != r.PathValue("category") {
		http.NotFound(w, r)
		return
	}

	entities, err := s.src.ApprovedEntities(r.Context())
	if err != nil {
		zap.S().Errorf("Loading sites: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	byCategory := ranking.RankByCategory(ranking.FromEntities(entities))
	s.render(w, "index.html", map[string]any{
		"Title":      category.Label() + " ランキング",
		"Table":      leaderboardMarkdown(entities, byCategory[category]),
		"Categories": site.Categories,
	})
}

type rankingResponse struct {
	Slug         string  `json:"slug"`
	Score        float64 `json:"score"`
	OverallRank  int     `json:"overall_rank"`
	CategoryRank int     `json:"category_rank"`
	Display      string  `json:"display"`
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	entities, err := s.src.ApprovedEntities(r.Context())
	if err != nil {
		zap.S().Errorf("Loading sites: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load sites"})
		return
	}

	pos, ok := ranking.Lookup(ranking.FromEntities(entities), r.PathValue("slug"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "site not found"})
		return
	}
	writeJSON(w, http.StatusOK, rankingResponse{
		Slug:         pos.Slug,
		Score:        pos.Score,
		OverallRank:  pos.Overall,
		CategoryRank: pos.CategoryRank,
		Display:      pos.Display(),
	})
}

// leaderboardMarkdown renders ranked sites as a Markdown table.
func leaderboardMarkdown(entities []site.Entity, ranked []ranking.Ranked) string {
	names := make(map[string]string, len(entities))
	for _, e := range entities {
		names[e.Slug] = e.Name
	}

	if len(ranked) == 0 {
		return "_まだ掲載サイトがありません。_\n"
	}

	var b strings.Builder
	b.WriteString("| 順位 | サイト | カテゴリ | 平均評価 | 口コミ数 | スコア |\n")
	b.WriteString("|---:|---|---|---:|---:|---:|\n")
	for _, r := range ranked {
		fmt.Fprintf(&b, "| %d | %s | %s | %.1f | %d | %.1f |\n",
			r.Rank, escapeCell(names[r.Slug]), r.Category.Label(), r.AverageRating, r.ReviewCount, r.Score)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		zap.S().Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		zap.S().Errorf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve starts the HTTP server on the given port and shuts it down when
// ctx is cancelled.
func Serve(ctx context.Context, src store.EntitySource, port int) error {
	srv, err := New(src)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	zap.S().Infof("Server listening on http://%s", httpSrv.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
