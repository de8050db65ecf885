package collect

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/TobiSchelling/keibareview/internal/site"
)

// categoryKeywords are checked in order; the first category with a
// matching keyword wins.
var categoryKeywords = []struct {
	category site.Category
	keywords []string
}{
	{site.Nankan, []string{"南関", "大井", "川崎", "船橋", "浦和", "NANKAN"}},
	{site.Chuo, []string{"中央競馬", "JRA", "東京競馬", "阪神競馬", "中京競馬", "京都競馬"}},
	{site.Chihou, []string{"地方競馬", "NAR", "園田", "金沢", "名古屋", "高知"}},
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)

// Categorize guesses a site's category from its name, description and URL.
// Matching is case-insensitive.
func Categorize(name, description, siteURL string) site.Category {
	text := strings.ToLower(name + " " + description + " " + siteURL)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return ck.category
			}
		}
	}
	return site.Other
}

// Slug derives a URL slug from the site's domain: "www.keiba-ai.jp"
// becomes "keiba-ai-jp".
func Slug(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	host = strings.ReplaceAll(host, ".", "-")
	return slugInvalid.ReplaceAllString(host, "")
}

// Candidate is a site found by search or feed, not yet registered.
type Candidate struct {
	Name        string
	URL         string
	Description string
	Source      string
}

// Entity converts a candidate into an unapproved site listing.
func (c Candidate) Entity() site.Entity {
	return site.Entity{
		Name:        strings.TrimSpace(c.Name),
		Slug:        Slug(c.URL),
		URL:         c.URL,
		Category:    Categorize(c.Name, c.Description, c.URL),
		Description: strings.TrimSpace(c.Description),
	}
}
