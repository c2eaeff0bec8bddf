// Package transform turns a raw extracted string into a typed value.
//
// The pipeline is a pure function applied to every scalar field in a fixed
// order: trim, strip markup, regex, replace, case mapping. The result is then
// coerced to a number, a boolean or left as text. Nothing in this package
// fails: an invalid regex or an unparsable number leaves the value as it was.
package transform
