package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/program-crawler/internal/search"
)

// FeeRangeField is the filter field with fixed bucket options.
const FeeRangeField = "fee_range"

// FeeRanges are the fee buckets offered regardless of the corpus.
var FeeRanges = []string{"0-100000", "100000-150000", "150000-200000", "200000-999999999"}

// optionFields are the corpus fields offered as filters, in prompt order.
var optionFields = []string{"discipline", "sub_discipline", "university", "academic_level", "programme_type"}

// Options maps a filter field to the values the model may choose from.
type Options map[string][]string

// DocumentSource lists the indexed documents.
type DocumentSource interface {
	Documents(ctx context.Context) ([]search.Document, error)
}

// OptionsFrom collects the sorted distinct non-empty values of every filter
// field in docs, plus the fee buckets.
func OptionsFrom(docs []search.Document) Options {
	opts := make(Options, len(optionFields)+1)
	for _, field := range optionFields {
		seen := make(map[string]struct{})
		for _, doc := range docs {
			v := strings.TrimSpace(doc.Text(field))
			if v == "" {
				continue
			}
			seen[v] = struct{}{}
		}
		values := make([]string, 0, len(seen))
		for v := range seen {
			values = append(values, v)
		}
		sort.Strings(values)
		opts[field] = values
	}
	opts[FeeRangeField] = append([]string(nil), FeeRanges...)
	return opts
}

// LoadOptions reads the corpus and derives its filter options. An empty
// corpus is an error since the model would have nothing to choose from.
func LoadOptions(ctx context.Context, src DocumentSource) (Options, error) {
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("filter options not loaded: corpus is empty")
	}
	return OptionsFrom(docs), nil
}

// Fields returns the option fields in a stable order.
func (o Options) Fields() []string {
	out := make([]string, 0, len(o))
	for field := range o {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
