// Package vfs implements the in-memory virtual filesystem tree.
//
// The tree owns all nodes exclusively and persists every mutation through a
// storage.Backend before touching memory, so a failed backend write leaves
// the in-memory state unchanged. Callers only ever receive snapshots.
//
// Every change is reported through the observer registry as a closed set of
// event kinds. The sync layer subscribes to the same registry to schedule
// reconciliation and publishes its own status events through it.
package vfs
