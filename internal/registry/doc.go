// Package registry maps node type names to their compiled Go handlers and
// declared schemas.
//
// The registry is populated once during application startup, typically by
// the built-in modules, and frozen before any graph is built. After Freeze it
// is read-only, so concurrent runs can instantiate nodes without locking
// against late registrations.
package registry
