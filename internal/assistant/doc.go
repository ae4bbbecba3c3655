// Package assistant turns a free-text request into search filters by
// streaming a model's reasoning followed by a filter object. Filter values
// are constrained to options drawn from the indexed corpus.
package assistant
