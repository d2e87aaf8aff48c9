// Package config defines the format-agnostic graph document, the Loader
// interface implemented by the HCL and YAML loaders, and Assemble, which
// turns a document into a built graph with its cycle groups attached.
//
// Concrete loaders live in separate packages. They only translate syntax;
// every semantic check (unknown types, undeclared fields, cycles) is left to
// the graph builders so that errors are the same whatever the file format.
package config
