// Package crawler holds the program-crawl domain model: listing rows, crawl
// tasks and their states, extracted program documents, merged result records,
// the error taxonomy, and the small interfaces the pipeline stages implement.
package crawler
