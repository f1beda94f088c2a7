// Package storage defines the persistence contracts for the virtual
// filesystem and the backends that implement them.
//
// Two contracts exist with identical semantics:
//   - Backend: synchronous operations against a local medium
//   - AsyncBackend: the same operations with a context, modeling a
//     network-backed provider whose calls suspend
//
// Backends treat paths as opaque unique keys. All hierarchy invariants are
// the tree's responsibility.
//
// Implementations:
//   - Memory: volatile in-process map
//   - Disk: one record file per key, survives restarts
//   - Remote: HTTP record-store client with retries and compression
//   - Async: adapter lifting any Backend to the AsyncBackend contract
//
// Any call may fail with ErrUnavailable (transient, caller may retry) or
// ErrRejected (permanent, e.g. quota exceeded or invalid credential).
package storage
