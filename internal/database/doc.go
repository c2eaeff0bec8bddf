// Package database provides SQLite-based storage for the run history.
//
// When a scrape is started with --save, the RunDB records the run itself
// (source document, start and finish time, status) and the extracted result
// of every page as JSON. The history command reads these records back.
//
// SQLite is used through modernc.org/sqlite, a CGO-free driver, so the
// history is a single file under the XDG data directory.
package database
