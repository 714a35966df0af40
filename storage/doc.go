// Package storage provides interfaces and shared types for OAuth client,
// session, and token persistence.
//
// The storage package defines the three store interfaces used throughout the
// library:
//   - ClientStore: registered OAuth clients
//   - SessionStore: in-flight authorization sessions
//   - TokenStore: issued access tokens
//
// Each interface covers one independent concern; implementations guard each
// concern with its own lock and never hold two locks in the same critical
// section, so there is no cross-store deadlock risk.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage with background expiry sweeping
package storage
