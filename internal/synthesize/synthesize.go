package synthesize

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/TobiSchelling/keibareview/internal/classify"
	"github.com/TobiSchelling/keibareview/internal/contentbank"
	"github.com/TobiSchelling/keibareview/internal/lexicon"
	"github.com/TobiSchelling/keibareview/internal/site"
)

// DefaultMaxRedraws bounds how often a draw is repeated after hitting a
// forbidden keyword.
const DefaultMaxRedraws = 5

const (
	FallbackTitle  = "普通のサイト"
	FallbackBody   = "可もなく不可もなくといった印象です。"
	fallbackAuthor = "ユーザー"
)

var usernamePrefixes = map[site.Category][]string{
	site.Nankan: {"南関", "NANKAN", "南関ファン", "大井", "川崎", "船橋", "浦和"},
	site.Chuo:   {"JRA", "中央", "競馬", "keiba", "競馬ファン", "ベテラン", "初心者"},
	site.Chihou: {"地方競馬", "NAR", "地方", "園田", "金沢", "名古屋", "高知"},
	site.Other:  {"競馬", "keiba", "競馬ファン", "ベテラン", "初心者"},
}

var usernameSuffixes = []string{"太郎", "さん", "ユーザー", "好き", "マニア", "愛好家", "馬券師", "ファン"}

// Synthesizer builds review drafts from the content pool.
type Synthesizer struct {
	pool       contentbank.Pool
	rng        *rand.Rand
	maxRedraws int
}

// NewSynthesizer creates a synthesizer. A nil rng uses a randomly seeded
// source; maxRedraws <= 0 means DefaultMaxRedraws.
func NewSynthesizer(pool contentbank.Pool, rng *rand.Rand, maxRedraws int) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if maxRedraws <= 0 {
		maxRedraws = DefaultMaxRedraws
	}
	return &Synthesizer{pool: pool, rng: rng, maxRedraws: maxRedraws}
}

// Synthesize returns a draft for a site. It never returns an empty draft:
// when the pool for the chosen rating is empty, or every draw within the
// redraw budget hits a keyword forbidden for the category, the fixed
// fallback text is used.
func (s *Synthesizer) Synthesize(entityName string, class classify.RatingClass, category site.Category) site.ReviewDraft {
	stars := s.pickRating(class)

	entries := s.pool.Entries(stars)
	if len(entries) == 0 {
		zap.S().Warnf("no ⭐%d reviews available, using fallback text for %s", stars, entityName)
		return s.fallback(stars)
	}

	for attempt := 0; attempt <= s.maxRedraws; attempt++ {
		e := entries[s.rng.IntN(len(entries))]
		if w, bad := lexicon.Match(category, e.Title+e.Body); bad {
			zap.S().Debugf("rejected review %q for %s (%s): contains %q", e.Title, entityName, category, w)
			continue
		}
		return site.ReviewDraft{
			StarRating: stars,
			Title:      e.Title,
			Body:       e.Body,
			AuthorName: s.AuthorName(category),
		}
	}

	zap.S().Warnf("every ⭐%d draw for %s hit a forbidden keyword, using fallback text", stars, entityName)
	return s.fallback(stars)
}

func (s *Synthesizer) pickRating(class classify.RatingClass) int {
	if class.Fixed() {
		return class.Low
	}
	return class.Low + s.rng.IntN(class.High-class.Low+1)
}

func (s *Synthesizer) fallback(stars int) site.ReviewDraft {
	return site.ReviewDraft{
		StarRating: stars,
		Title:      FallbackTitle,
		Body:       FallbackBody,
		AuthorName: fmt.Sprintf("%s%02d", fallbackAuthor, s.rng.IntN(100)),
	}
}

// AuthorName composes a category-flavoured handle: prefix, suffix and a
// two-digit number.
func (s *Synthesizer) AuthorName(category site.Category) string {
	prefixes, ok := usernamePrefixes[category]
	if !ok {
		prefixes = usernamePrefixes[site.Other]
	}
	prefix := prefixes[s.rng.IntN(len(prefixes))]
	suffix := usernameSuffixes[s.rng.IntN(len(usernameSuffixes))]
	return fmt.Sprintf("%s%s%02d", prefix, suffix, s.rng.IntN(100))
}

// IsFallback reports whether d carries the fixed fallback text.
func IsFallback(d site.ReviewDraft) bool {
	return d.Title == FallbackTitle && d.Body == FallbackBody
}
