package sync

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/shared/paths"
	"github.com/cirrusfs/cirrus/internal/storage"
	"github.com/cirrusfs/cirrus/internal/vfs"
)

func (q *Queue) lastKnownSig(path string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastKnown[path]
}

func (q *Queue) setLastKnown(path, sig string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if sig == "" {
		delete(q.lastKnown, path)
		return
	}
	q.lastKnown[path] = sig
}

// remoteGet fetches the remote record through the breaker; nil means absent.
func (q *Queue) remoteGet(ctx context.Context, path string) (*storage.Record, error) {
	var rec *storage.Record
	err := q.breaker.Do(func() error {
		var err error
		rec, err = q.remote.Get(ctx, path)
		return err
	})
	return rec, err
}

// reconcile performs one remote round-trip for path and returns the
// resulting local node, nil when the path ends up absent on both sides.
func (q *Queue) reconcile(ctx context.Context, path string, kind OpKind) (*vfs.Node, error) {
	if kind == Upsert {
		if local, err := q.tree.Get(path); err == nil {
			return q.reconcileUpsert(ctx, path, local)
		}
		// The node vanished after the operation was enqueued; the deletion
		// is what must propagate.
	}
	return q.reconcileRemove(ctx, path)
}

func (q *Queue) reconcileUpsert(ctx context.Context, path string, local *vfs.Node) (*vfs.Node, error) {
	remote, err := q.remoteGet(ctx, path)
	if err != nil {
		return nil, err
	}
	last := q.lastKnownSig(path)

	switch {
	case remote == nil || remote.Signature == last:
		// Remote unchanged since the last reconciliation: push.
		return local, q.push(ctx, path, local)

	case local.Signature == last:
		// Remote changed, local did not: pull and overwrite.
		node, err := q.pull(ctx, remote)
		if err != nil {
			return nil, err
		}
		q.setLastKnown(path, remote.Signature)
		q.metrics.Pulls.Inc()
		return node, nil

	default:
		return q.resolveConflict(ctx, path, local, remote)
	}
}

func (q *Queue) reconcileRemove(ctx context.Context, path string) (*vfs.Node, error) {
	remote, err := q.remoteGet(ctx, path)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		q.setLastKnown(path, "")
		return nil, nil
	}
	last := q.lastKnownSig(path)
	if remote.Signature != last {
		// Remote changed since we last saw it while the local copy was
		// deleted: the deletion loses and the remote version is restored.
		// Data is never dropped on a divergent delete.
		node, err := q.pull(ctx, remote)
		if err != nil {
			return nil, err
		}
		q.setLastKnown(path, remote.Signature)
		q.metrics.Pulls.Inc()
		return node, nil
	}

	if err := q.breaker.Do(func() error { return q.remote.Delete(ctx, path) }); err != nil {
		return nil, err
	}
	q.setLastKnown(path, "")
	q.metrics.Pushes.Inc()
	return nil, nil
}

func (q *Queue) push(ctx context.Context, path string, local *vfs.Node) error {
	rec := local.Record()
	if err := q.breaker.Do(func() error { return q.remote.Put(ctx, path, rec) }); err != nil {
		return err
	}
	q.setLastKnown(path, local.Signature)
	q.metrics.Pushes.Inc()
	return nil
}

// pull installs a remote record locally. For directories, children absent
// from the local tree are fetched first so the hierarchy invariant holds
// when the directory record is applied.
func (q *Queue) pull(ctx context.Context, rec *storage.Record) (*vfs.Node, error) {
	if rec.Kind == storage.KindDirectory {
		for _, name := range rec.Children {
			childPath := paths.Join(rec.Path, name)
			if _, err := q.tree.Get(childPath); err == nil {
				// Present locally; it reconciles on its own schedule.
				continue
			}
			child, err := q.remoteGet(ctx, childPath)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			if _, err := q.pull(ctx, child); err != nil {
				return nil, err
			}
			q.setLastKnown(childPath, child.Signature)
		}
	}
	return q.tree.ApplyRemote(rec)
}

// resolveConflict applies last-writer-wins at node granularity. Directory
// conflicts merge child-sets as a union, since directory structure is
// commutative. Both prior versions ride along in the ConflictResolved event.
func (q *Queue) resolveConflict(ctx context.Context, path string, local *vfs.Node, remote *storage.Record) (*vfs.Node, error) {
	remoteNode := vfs.FromRecord(remote)
	prior := &vfs.Conflict{Local: local.Clone(), Remote: remoteNode}

	var winner *vfs.Node
	var err error

	switch {
	case local.IsDir() && remote.Kind == storage.KindDirectory:
		prior.Disposition = vfs.Merged
		winner, err = q.mergeDirectories(ctx, path, local, remote)

	case local.ModifiedAt >= remote.ModifiedAt:
		// Ties break toward the local replica: deterministic either way.
		prior.Disposition = vfs.LocalWins
		winner, err = local, q.push(ctx, path, local)

	default:
		prior.Disposition = vfs.RemoteWins
		winner, err = q.pull(ctx, remote)
		if err == nil {
			q.setLastKnown(path, remote.Signature)
		}
	}
	if err != nil {
		return nil, err
	}

	q.metrics.Conflicts.WithLabelValues(string(prior.Disposition)).Inc()
	q.log.Info("conflict resolved",
		zap.String("path", path),
		zap.String("disposition", string(prior.Disposition)),
	)
	q.tree.Events().Publish(vfs.Event{
		Kind:     vfs.EventConflictResolved,
		Path:     path,
		Node:     winner.Clone(),
		Conflict: prior,
	})
	return winner, nil
}

// mergeDirectories reconciles two divergent directory versions by taking the
// union of their child-sets and installing it on both replicas.
func (q *Queue) mergeDirectories(ctx context.Context, path string, local *vfs.Node, remote *storage.Record) (*vfs.Node, error) {
	union := make(map[string]struct{}, len(local.Children)+len(remote.Children))
	for name := range local.Children {
		union[name] = struct{}{}
	}
	for _, name := range remote.Children {
		union[name] = struct{}{}
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)

	ts := local.ModifiedAt
	if remote.ModifiedAt > ts {
		ts = remote.ModifiedAt
	}

	merged := &storage.Record{
		Path:       path,
		Kind:       storage.KindDirectory,
		Children:   names,
		ModifiedAt: ts,
	}

	// Remote-only children come over first so applying the merged record
	// keeps every referenced entry resolvable.
	node, err := q.pull(ctx, merged)
	if err != nil {
		return nil, err
	}

	merged.Signature = node.Signature
	if err := q.breaker.Do(func() error { return q.remote.Put(ctx, path, merged) }); err != nil {
		return nil, err
	}
	q.setLastKnown(path, merged.Signature)
	q.metrics.Pushes.Inc()
	return node, nil
}
