package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/JakeFAU/program-crawler/internal/extract"
)

// Weights maps a record field to its importance for a query.
type Weights map[string]float64

const (
	minWeight = 1.0
	maxWeight = 5.0
)

// DefaultQueryWeights is used when the model cannot produce weights.
func DefaultQueryWeights() Weights {
	return Weights{
		"program_name":   3.0,
		"discipline":     2.5,
		"sub_discipline": 2.0,
		"university":     2.0,
		"academic_level": 1.5,
		"programme_type": 1.5,
		"introduction":   1.0,
	}
}

// DefaultIndexWeights drives the weighted document embedding.
func DefaultIndexWeights() Weights {
	return Weights{
		"program_name":   3.0,
		"university":     2.0,
		"discipline":     2.5,
		"sub_discipline": 2.0,
		"tags":           1.5,
		"academic_level": 1.5,
		"programme_type": 1.5,
		"introduction":   1.0,
	}
}

// Fields returns the weighted fields in sorted order.
func (w Weights) Fields() []string {
	out := make([]string, 0, len(w))
	for field := range w {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// Clone copies w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ParseWeights decodes a model reply into clamped weights. The reply may be
// fenced and may use JSON5 conveniences such as trailing commas or unquoted
// keys; numeric strings are accepted.
func ParseWeights(content string) (Weights, error) {
	body := strings.TrimSpace(extract.StripCodeFence(content))
	if body == "" {
		return nil, fmt.Errorf("parse weights: empty reply")
	}
	var raw map[string]any
	if err := json5.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("parse weights: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("parse weights: no fields")
	}
	out := make(Weights, len(raw))
	for field, v := range raw {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("parse weight %q: %w", field, err)
		}
		out[field] = clamp(f)
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

func clamp(f float64) float64 {
	if f < minWeight {
		return minWeight
	}
	if f > maxWeight {
		return maxWeight
	}
	return f
}
