package config

import "context"

// Loader reads graph documents from files or directories.
type Loader interface {
	// Load reads every matching file under paths and merges them into one
	// document.
	Load(ctx context.Context, paths ...string) (*Document, error)
	// Extensions lists the file extensions the loader understands,
	// lowercase and with the leading dot.
	Extensions() []string
}
