// Package fetch retrieves page text over HTTP.
//
// A Fetcher consults the on-disk Cache before touching the network, retries
// transport failures with a fixed wait between attempts and stores every
// successful response back into the cache. HTTP error statuses are not
// failures: their bodies are returned like any other page.
//
// Pacer pauses for the configured delay between the end of one request and
// the start of the next.
package fetch
