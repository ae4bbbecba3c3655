package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/JakeFAU/program-crawler/internal/extract"
)

// SnapThreshold is the minimum Jaro-Winkler similarity for a value to be
// replaced by an option.
const SnapThreshold = 0.85

// FilterPayload is the object the model emits after the marker.
type FilterPayload struct {
	Filters map[string][]string `json:"filters"`
}

// Snap restricts every filter value to the option lists. Exact matches are
// kept, near misses are replaced by the most similar option and the rest are
// dropped, as are fields without options.
func Snap(p FilterPayload, opts Options) FilterPayload {
	out := FilterPayload{Filters: make(map[string][]string, len(p.Filters))}
	for field, values := range p.Filters {
		options, ok := opts[field]
		if !ok {
			continue
		}
		var kept []string
		seen := make(map[string]struct{})
		for _, v := range values {
			match, ok := closest(v, options)
			if !ok {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			kept = append(kept, match)
		}
		if len(kept) > 0 {
			out.Filters[field] = kept
		}
	}
	return out
}

func closest(value string, options []string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	lower := strings.ToLower(value)
	best, bestScore := "", 0.0
	for _, opt := range options {
		if opt == value {
			return opt, true
		}
		score := matchr.JaroWinkler(lower, strings.ToLower(opt), false)
		if score > bestScore {
			best, bestScore = opt, score
		}
	}
	if bestScore < SnapThreshold {
		return "", false
	}
	return best, true
}

// ParsePayload decodes the filter object, tolerating a code fence.
func ParsePayload(raw string) (FilterPayload, error) {
	var p FilterPayload
	if err := json.Unmarshal([]byte(extract.StripCodeFence(raw)), &p); err != nil {
		return FilterPayload{}, fmt.Errorf("parse filter payload: %w", err)
	}
	if p.Filters == nil {
		p.Filters = map[string][]string{}
	}
	return p, nil
}
