// Package crawler expands a single seed URL into the ordered list of pages
// to scrape.
//
// # Strategies
//
// The Paginator supports two strategies, selected by the pagination section
// of the document:
//
//   - Pattern: page numbers from startPage to endPage are substituted into
//     pagePattern. No network access is needed unless stopOnEmpty is set.
//   - Next link: the seed page is fetched, the first element matching
//     nextSelector is located and its href becomes the next page. This
//     repeats until no link is found or maxPages is reached.
//
// # Stop on empty
//
// With stopOnEmpty, candidate pages are fetched and extracted with the run's
// schema while the list is being built. The first page whose result is empty
// ends pagination. These fetches are independent of the ones the run makes
// afterwards, so with caching disabled every checked page is requested twice.
//
// # Politeness
//
// Every fetch made by the Paginator waits on the shared pacer first, so the
// configured delay also applies between "next" pages.
package crawler
