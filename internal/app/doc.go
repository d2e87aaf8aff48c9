// Package app contains the core application logic. It wires the node type
// registry, the graph document loaders, the engine and its stores together
// and runs one graph, decoupled from any specific entrypoint like a CLI.
package app
