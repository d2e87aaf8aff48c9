// Package fieldpath addresses a possibly nested field inside a node output.
//
// A path is the dotted form used on edges, e.g. `result.quality` or
// `scores[2].value`. It is parsed once into an ordered sequence of accessors
// (attribute names and integer indices) and resolved against cty values at
// run time, or checked against a declared cty type at build time.
package fieldpath
