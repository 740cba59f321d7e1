package advisor

import (
	"regexp"
	"strings"
)

// RoutePair is a city pair mentioned in free text.
type RoutePair struct {
	Origin      string
	Destination string
}

var pairRe = regexp.MustCompile(`\b([A-Z]{3})\s*(?:-|->|—|TO)\s*([A-Z]{3})\b`)

// ExtractRoutePairs scans the user message for city pair mentions such as
// "MAD-JFK", "mad to jfk", or "MAD -> JFK". Returns deduplicated pairs.
func ExtractRoutePairs(text string) []RoutePair {
	upper := strings.ToUpper(text)

	seen := make(map[RoutePair]bool)
	var result []RoutePair
	for _, m := range pairRe.FindAllStringSubmatch(upper, -1) {
		pair := RoutePair{Origin: m[1], Destination: m[2]}
		if pair.Origin == pair.Destination || seen[pair] {
			continue
		}
		seen[pair] = true
		result = append(result, pair)
	}
	return result
}
