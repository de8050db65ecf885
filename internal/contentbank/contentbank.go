// Package contentbank loads the pre-written review texts, one source per
// star rating.
package contentbank

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// MaxTitleRunes is the title length limit.
	MaxTitleRunes = 30
	// MinBodyRunes is the shortest body kept at load time.
	MinBodyRunes = 50

	starMarker = "⭐"
)

// Entry is a single pre-written review.
type Entry struct {
	Title string
	Body  string
}

// Pool maps a star rating (1-5) to its entries in file order.
type Pool map[int][]Entry

// Entries returns the entries for a rating.
func (p Pool) Entries(rating int) []Entry {
	return p[rating]
}

// Total returns the number of entries across all ratings.
func (p Pool) Total() int {
	n := 0
	for _, e := range p {
		n += len(e)
	}
	return n
}

// DefaultSources returns the conventional file names under dir.
func DefaultSources(dir string) map[int]string {
	return map[int]string{
		1: filepath.Join(dir, "⭐1（辛口／クレーム寄り）.txt"),
		2: filepath.Join(dir, "⭐2（少し辛口寄り）.txt"),
		3: filepath.Join(dir, "⭐3（ニュートラル）.txt"),
		4: filepath.Join(dir, "⭐4（少しポジティブ寄り）.txt"),
		5: filepath.Join(dir, "⭐5（ポジティブ寄り） .txt"),
	}
}

// Load reads every source into a Pool. A missing or unreadable source is
// logged and leaves that rating empty.
func Load(sources map[int]string) Pool {
	pool := make(Pool, 5)
	for rating := 1; rating <= 5; rating++ {
		path, ok := sources[rating]
		if !ok || path == "" {
			pool[rating] = nil
			continue
		}

		entries, err := LoadFile(path)
		if err != nil {
			zap.S().Warnf("review source for ⭐%d unavailable: %v", rating, err)
			pool[rating] = nil
			continue
		}
		pool[rating] = entries
		zap.S().Infof("⭐%d: loaded %d reviews", rating, len(entries))
	}
	return pool
}

// LoadFile parses a single source file.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse splits r into blank-line separated blocks. In each block a leading
// all-digit index line is dropped, then a header line holding the star
// marker. The next line is the title and the lines after it, joined without
// a separator, are the body. Blocks whose body is shorter than MinBodyRunes
// are dropped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var block []string

	flush := func() {
		if e, ok := parseBlock(block); ok {
			entries = append(entries, e)
		}
		block = block[:0]
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading review source: %w", err)
	}
	flush()

	return entries, nil
}

func parseBlock(lines []string) (Entry, bool) {
	start := 0
	if start < len(lines) && isIndexLine(lines[start]) {
		start++
	}
	if start < len(lines) && strings.Contains(lines[start], starMarker) {
		start++
	}
	if start >= len(lines) {
		return Entry{}, false
	}

	title := truncateRunes(lines[start], MaxTitleRunes)
	body := strings.Join(lines[start+1:], "")
	if utf8.RuneCountInString(body) < MinBodyRunes {
		return Entry{}, false
	}
	return Entry{Title: title, Body: body}, true
}

func isIndexLine(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
