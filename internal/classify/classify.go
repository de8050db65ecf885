package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Kind is the trust tier of a listed site.
type Kind string

const (
	Malicious  Kind = "malicious"
	Legitimate Kind = "legitimate"
	Unknown    Kind = "unknown"
)

// RatingClass constrains the star ratings a site may receive.
// Low and High are inclusive and Low <= High.
type RatingClass struct {
	Kind Kind
	Low  int
	High int
}

// ClassFor returns the rating class for a kind.
// Legitimate is part of the model but nothing assigns it yet.
func ClassFor(k Kind) RatingClass {
	switch k {
	case Malicious:
		return RatingClass{Kind: Malicious, Low: 1, High: 2}
	case Legitimate:
		return RatingClass{Kind: Legitimate, Low: 3, High: 5}
	default:
		return RatingClass{Kind: Unknown, Low: 3, High: 3}
	}
}

// Fixed reports whether the class allows exactly one rating.
func (r RatingClass) Fixed() bool {
	return r.Low == r.High
}

// Label is the short marker used in run output.
func (r RatingClass) Label() string {
	switch r.Kind {
	case Malicious:
		return "❌悪質"
	case Legitimate:
		return "✅優良"
	default:
		return "⚪不明"
	}
}

// Classify matches name against the curated malicious names. A site is
// malicious when its name contains a curated entry or is contained by one,
// so short curated fragments match longer listing names and vice versa.
// Matching is case-sensitive.
func Classify(name string, malicious []string) RatingClass {
	if name != "" {
		for _, m := range malicious {
			if m == "" {
				continue
			}
			if strings.Contains(name, m) || strings.Contains(m, name) {
				return ClassFor(Malicious)
			}
		}
	}
	return ClassFor(Unknown)
}

// Curated is the hand-maintained site rating list.
type Curated struct {
	Malicious  []string `json:"malicious"`
	Legitimate []string `json:"legitimate,omitempty"`
}

// LoadCurated reads the curated list from path. A missing file is not an
// error: it logs a warning and returns an empty list.
func LoadCurated(path string) (*Curated, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			zap.S().Warnf("curated site list not found: %s", path)
			return &Curated{}, nil
		}
		return nil, fmt.Errorf("reading curated list: %w", err)
	}

	var c Curated
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing curated list %s: %w", path, err)
	}
	return &c, nil
}
