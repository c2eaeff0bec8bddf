// Package pipeline coordinates a scrape run.
//
// The Runner resolves the list of URLs (expanding pagination when a single
// URL is configured) and then processes them one at a time. Each page goes
// through a Pipeline of steps: fetch the text, extract the schema and,
// optionally, record the result. Processing stops at the first failing page.
//
// Pages are never fetched concurrently; the configured delay is applied
// between consecutive requests by a shared pacer.
package pipeline
