package collect

import (
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 20

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser reads RSS/Atom feeds that list prediction sites.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig) *FeedParser {
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser()}
}

// ParseAll parses all configured feeds. A feed that fails is logged and
// skipped.
func (fp *FeedParser) ParseAll(ctx context.Context) []Candidate {
	var all []Candidate
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		feed, err := fp.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			zap.S().Warnf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		candidates := candidatesFromFeed(feed, name)
		all = append(all, candidates...)
		zap.S().Infof("Parsed %d entries from %s", len(candidates), name)
	}
	return all
}

func candidatesFromFeed(feed *gofeed.Feed, source string) []Candidate {
	var out []Candidate
	for _, item := range feed.Items {
		if len(out) >= maxPerFeed {
			break
		}
		if c, ok := parseItem(item, source); ok {
			out = append(out, c)
		}
	}
	return out
}

func parseItem(item *gofeed.Item, source string) (Candidate, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if !strings.HasPrefix(itemURL, "http") {
		return Candidate{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Candidate{}, false
	}

	var description string
	if item.Description != "" {
		description = stripHTML(item.Description)
	} else if item.Content != "" {
		description = stripHTML(item.Content)
	}

	return Candidate{Name: title, URL: itemURL, Description: description, Source: source}, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)

	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "news.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
