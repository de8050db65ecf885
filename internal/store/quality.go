package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/keibareview/internal/site"
)

// QualityUpdate sets a site's moderation quality and display priority.
type QualityUpdate struct {
	ID              string       `yaml:"id"`
	Quality         site.Quality `yaml:"quality"`
	DisplayPriority *int         `yaml:"display_priority"`
}

// LoadQualityUpdates reads a YAML file of the form
//
//	updates:
//	  - id: recXXXX
//	    quality: premium
//	    display_priority: 100
//
// and returns the matching record updates for the sites table.
func LoadQualityUpdates(path string) ([]RecordUpdate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading quality file: %w", err)
	}
	return ParseQualityUpdates(data)
}

// ParseQualityUpdates parses the YAML quality file format.
func ParseQualityUpdates(data []byte) ([]RecordUpdate, error) {
	var doc struct {
		Updates []QualityUpdate `yaml:"updates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing quality file: %w", err)
	}

	out := make([]RecordUpdate, 0, len(doc.Updates))
	for i, u := range doc.Updates {
		if u.ID == "" {
			return nil, fmt.Errorf("update %d: missing id", i+1)
		}
		fields := map[string]any{}
		if u.Quality != "" {
			if !u.Quality.Valid() {
				return nil, fmt.Errorf("update %d (%s): invalid quality %q", i+1, u.ID, u.Quality)
			}
			fields["SiteQuality"] = string(u.Quality)
		}
		if u.DisplayPriority != nil {
			fields["DisplayPriority"] = *u.DisplayPriority
		}
		if len(fields) == 0 {
			return nil, fmt.Errorf("update %d (%s): nothing to change", i+1, u.ID)
		}
		out = append(out, RecordUpdate{ID: u.ID, Fields: fields})
	}
	return out, nil
}
