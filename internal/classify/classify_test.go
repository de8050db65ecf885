package classify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyMatchesBothDirections(t *testing.T) {
	if got := Classify("大井競馬", []string{"大井"}); got.Kind != Malicious {
		t.Errorf("expected name containing curated entry to be malicious, got %s", got.Kind)
	}
	if got := Classify("大井", []string{"大井競馬場"}); got.Kind != Malicious {
		t.Errorf("expected name contained by curated entry to be malicious, got %s", got.Kind)
	}
}

func TestClassifyIsCaseSensitive(t *testing.T) {
	if got := Classify("keiba-ace", []string{"KEIBA"}); got.Kind != Unknown {
		t.Errorf("expected case-sensitive miss, got %s", got.Kind)
	}
}

func TestClassifyDefaultsToUnknown(t *testing.T) {
	got := Classify("普通のサイト", []string{"悪質サイトX"})
	if got.Kind != Unknown {
		t.Fatalf("expected unknown, got %s", got.Kind)
	}
	if got.Low != 3 || got.High != 3 {
		t.Errorf("expected [3,3], got [%d,%d]", got.Low, got.High)
	}
}

func TestClassifyIgnoresEmptyEntries(t *testing.T) {
	if got := Classify("普通のサイト", []string{""}); got.Kind != Unknown {
		t.Errorf("empty curated entry must not match, got %s", got.Kind)
	}
	if got := Classify("", []string{"悪質"}); got.Kind != Unknown {
		t.Errorf("empty name must not match, got %s", got.Kind)
	}
}

func TestClassRanges(t *testing.T) {
	tests := []struct {
		kind      Kind
		low, high int
	}{
		{Malicious, 1, 2},
		{Unknown, 3, 3},
		{Legitimate, 3, 5},
	}
	for _, tt := range tests {
		c := ClassFor(tt.kind)
		if c.Low != tt.low || c.High != tt.high {
			t.Errorf("%s: expected [%d,%d], got [%d,%d]", tt.kind, tt.low, tt.high, c.Low, c.High)
		}
		if c.Low > c.High {
			t.Errorf("%s: low above high", tt.kind)
		}
	}
	if !ClassFor(Unknown).Fixed() || ClassFor(Malicious).Fixed() {
		t.Error("unexpected Fixed result")
	}
}

func TestLoadCurated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site-ratings.json")
	data := []byte(`{"malicious": ["悪質サイトX", "詐欺予想"]}`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write curated list: %v", err)
	}

	c, err := LoadCurated(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Malicious) != 2 || c.Malicious[0] != "悪質サイトX" {
		t.Errorf("unexpected malicious list: %v", c.Malicious)
	}
}

func TestLoadCuratedMissingFile(t *testing.T) {
	c, err := LoadCurated(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if len(c.Malicious) != 0 {
		t.Errorf("expected empty list, got %v", c.Malicious)
	}
}

func TestLoadCuratedMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{malicious"), 0o644)
	if _, err := LoadCurated(path); err == nil {
		t.Error("expected parse error")
	}
}
