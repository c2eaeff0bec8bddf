// Package selector compiles CSS selector strings into reusable matchers.
//
// A Matcher is compiled once and applied to any number of parsed documents
// or fragments. Compilation failures are configuration errors: they wrap
// ErrInvalidSelector and must abort the run rather than be skipped.
//
// Matchers satisfy goquery.Matcher, so they plug directly into
// Selection.FindMatcher and friends.
package selector
