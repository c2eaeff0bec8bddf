// Package extract walks a parsed HTML document with a field schema and
// produces a typed model.Tree.
//
// Scalar fields take the nth match of their selector, read either an
// attribute or the inner markup, and run it through the transformation
// pipeline. Group fields take every match, re-parse each one's outer markup
// as a standalone fragment and extract the nested schema from it, producing
// one tree per match in document order.
//
// Sibling fields and sibling group elements are evaluated concurrently.
// Results are reduced with model.Tree.Insert, so the outcome does not depend
// on scheduling. A malformed selector is the only error; missing elements
// and unparsable fragments fall back to defaults.
package extract
