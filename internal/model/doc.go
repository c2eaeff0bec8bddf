// Package model defines the typed values produced by extraction.
//
// A Tree mirrors the shape of the field schema it was extracted with: a
// scalar field becomes a Text, Number or Bool value and a group field becomes
// a List of nested trees, one per matched element.
package model
