// Package sync reconciles a local filesystem tree with a remote replica.
//
// Each path moves through a small state machine:
//
//	Idle -> Pending -> InFlight -> {Idle, Pending(retry)}
//
// Local mutations enqueue a Pending operation and start its debounce timer;
// further mutations within the window coalesce into the same operation, so a
// burst of edits costs one remote round-trip. A mutation landing while the
// path is InFlight queues exactly one follower behind it. Per-path
// operations are totally ordered; operations on distinct paths run
// concurrently.
//
// Reconciliation compares the remote record's signature against the
// last-known signature recorded at the previous successful reconciliation.
// Remote unchanged means push; remote changed with the local copy untouched
// means pull; both changed is a genuine conflict resolved last-writer-wins at
// node granularity, with directory child-sets merged as a union.
//
// Transient failures retry with capped exponential backoff; exhausting the
// attempt cap drops the operation and reports sync_failed, keeping the
// error for a user-triggered Retry. The local tree stays fully usable
// offline throughout.
package sync
