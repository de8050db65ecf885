// Package lexicon holds the per-category forbidden keyword tables used to
// keep review text consistent with the circuit a site covers.
package lexicon

import (
	"strings"

	"github.com/TobiSchelling/keibareview/internal/site"
)

var forbidden = map[site.Category][]string{
	site.Chuo: {
		// nankan
		"ナイター競馬", "ナイター", "南関", "NANKAN", "南関競馬",
		"大井競馬", "川崎競馬", "船橋競馬", "浦和競馬",
		"大井", "川崎", "船橋", "浦和",
		"TCK",
		// local circuits
		"地方競馬", "NAR", "園田", "金沢", "名古屋", "高知",
		"笠松", "門別", "盛岡", "水沢",
		"ばんえい", "ホッカイドウ競馬",
	},
	site.Nankan: {
		"G1", "GⅠ", "G2", "GⅡ", "G3", "GⅢ",
		"有馬記念", "日本ダービー", "天皇賞", "宝塚記念",
		"菊花賞", "皐月賞", "桜花賞", "オークス",
		"東京競馬場", "中山競馬場", "阪神競馬場", "京都競馬場",
		"中京競馬場", "新潟競馬場", "福島競馬場", "小倉競馬場",
	},
	site.Chihou: {
		"JRA", "G1", "GⅠ", "有馬記念", "日本ダービー",
		"南関", "NANKAN", "南関競馬", "TCK",
	},
}

// Forbidden returns a copy of the keyword list for a category.
// Categories without a list (including Other) return nil.
func Forbidden(c site.Category) []string {
	words := forbidden[c]
	if len(words) == 0 {
		return nil
	}
	out := make([]string, len(words))
	copy(out, words)
	return out
}

// Match returns the first forbidden keyword found in text.
func Match(c site.Category, text string) (string, bool) {
	for _, w := range forbidden[c] {
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}

// Contains reports whether text holds any keyword forbidden for c.
func Contains(c site.Category, text string) bool {
	_, ok := Match(c, text)
	return ok
}
