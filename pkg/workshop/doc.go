// Package workshop adapts the Steam Workshop web UI to the engine's ports:
// listing pages, collection pages, the "Add to Collection" dialog and the
// "Subscribe to all" flow. Selectors are kept together in selectors.go.
package workshop
