// Package main provides the entry point for the krk CLI.
//
// krk scrapes web pages into structured data. A YAML document describes
// which pages to fetch and a schema of CSS selectors describes what to
// extract from each of them.
//
// Usage:
//
//	krk init
//	krk scrape krk.yaml
//	krk scrape -f csv -o items.csv krk.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
