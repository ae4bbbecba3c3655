// Package search indexes crawl results into an embedded corpus and answers
// keyword, vector and LLM-weighted queries over it.
package search
