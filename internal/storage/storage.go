// Package storage provides durable key-value persistence for client state
// that must survive process restarts, the console's equivalent of browser
// storage.
package storage

import "errors"

// ErrClosed is returned by stores that can no longer serve requests.
var ErrClosed = errors.New("storage: store is closed")

// Store persists small opaque values by key.
//
// Callers must never place a raw bearer access token in a Store; only
// session metadata and (in cookie mode) a refresh identifier belong here.
type Store interface {
	// Get returns the value for key. The second result reports presence.
	Get(key string) ([]byte, bool, error)
	// Set writes the value for key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error
}
