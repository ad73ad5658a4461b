// Package storage defines the durable key/value store the orchestration
// layer persists its flags and markers in. The library never owns the store;
// the host application supplies one (browser local storage, a keychain, a
// file) and the library treats every write as an idempotent upsert.
package storage

import "context"

// Store is the key/value storage collaborator. Implementations must be safe
// for concurrent use. Writes are last-writer-wins; no operation spans more
// than one key.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
	Clear()
}

// Syncer is implemented by stores that replicate asynchronously and need to
// be awaited before reads observe the latest state.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Sync awaits replication when the store supports it and is a no-op
// otherwise.
func Sync(ctx context.Context, s Store) error {
	if sy, ok := s.(Syncer); ok {
		return sy.Sync(ctx)
	}
	return nil
}
