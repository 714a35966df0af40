// Package memory implements the storage interfaces with in-process maps.
//
// The store keeps clients, authorization sessions, and issued access tokens
// in three maps, each behind its own RWMutex. A background goroutine sweeps
// expired sessions and tokens on a configurable interval so memory stays
// bounded under sustained traffic; reads additionally perform a lazy expiry
// check so entries are rejected even before the sweep runs.
//
// Usage:
//
//	store := memory.New()
//	defer store.Stop()
//
// The store implements storage.ClientStore, storage.SessionStore, and
// storage.TokenStore, so a single instance can serve all three roles.
package memory
