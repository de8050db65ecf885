package site

import "strings"

// Category is the racing circuit a listed site focuses on.
type Category string

const (
	Nankan Category = "nankan"
	Chuo   Category = "chuo"
	Chihou Category = "chihou"
	Other  Category = "other"
)

// Categories lists every known category in display order.
var Categories = []Category{Nankan, Chuo, Chihou, Other}

var categoryLabels = map[Category]string{
	Nankan: "NANKAN（南関）",
	Chuo:   "中央競馬",
	Chihou: "地方競馬",
	Other:  "その他",
}

// ParseCategory maps a stored category value onto a Category.
// Unknown or empty values become Other.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryLabels[c]; ok {
		return c
	}
	return Other
}

// Label returns the Japanese display name.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[Other]
}

// Quality is the moderator-assigned site quality tier.
type Quality string

const (
	QualityPremium   Quality = "premium"
	QualityExcellent Quality = "excellent"
	QualityNormal    Quality = "normal"
	QualityPoor      Quality = "poor"
	QualityMalicious Quality = "malicious"
)

// Valid reports whether q is one of the known tiers.
func (q Quality) Valid() bool {
	switch q {
	case QualityPremium, QualityExcellent, QualityNormal, QualityPoor, QualityMalicious:
		return true
	}
	return false
}

// Entity is a snapshot of a listed site as held by the store.
type Entity struct {
	ID            string
	Name          string
	Slug          string
	URL           string
	Category      Category
	Description   string
	Approved      bool
	ReviewCount   int
	AverageRating float64
}

// ReviewDraft is a review ready to be handed to the store.
type ReviewDraft struct {
	StarRating int
	Title      string
	Body       string
	AuthorName string
}

// IsZero reports whether the draft carries no content.
func (d ReviewDraft) IsZero() bool {
	return d.StarRating == 0 && d.Title == "" && d.Body == "" && d.AuthorName == ""
}
