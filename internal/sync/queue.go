package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/logging"
	"github.com/cirrusfs/cirrus/internal/monitoring"
	"github.com/cirrusfs/cirrus/internal/resilience"
	"github.com/cirrusfs/cirrus/internal/storage"
	"github.com/cirrusfs/cirrus/internal/vfs"
)

// Config is the tuning surface of the queue.
type Config struct {
	// Debounce is the coalescing window after the last mutation to a path.
	Debounce time.Duration
	// MaxAttempts bounds tries per operation before it is dropped.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; it doubles per
	// attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// OpTimeout bounds one reconciliation round-trip.
	OpTimeout time.Duration
}

// DefaultConfig mirrors the tuning the original deployment shipped with.
func DefaultConfig() Config {
	return Config{
		Debounce:    2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffCap:  30 * time.Second,
		OpTimeout:   time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
}

// Queue coordinates a local tree with a remote AsyncBackend. It subscribes
// to the tree's observer registry for local mutations and publishes sync
// status events through the same registry. It holds references to both
// collaborators but owns neither.
type Queue struct {
	tree    *vfs.Tree
	remote  storage.AsyncBackend
	cfg     Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	breaker *resilience.Breaker

	mu        stdsync.Mutex
	cond      *stdsync.Cond
	entries   map[string]*entry
	lastKnown map[string]string
	lastSync  time.Time
	closed    bool

	sub vfs.Handle
	wg  stdsync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue's logger.
func WithLogger(log *logging.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithBreaker overrides the circuit breaker guarding remote calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(q *Queue) { q.breaker = b }
}

// New creates a queue bound to tree and remote and starts observing local
// mutations. Call Close to detach.
func New(tree *vfs.Tree, remote storage.AsyncBackend, cfg Config, opts ...Option) *Queue {
	cfg.applyDefaults()
	q := &Queue{
		tree:      tree,
		remote:    remote,
		cfg:       cfg,
		log:       logging.NewNop(),
		entries:   make(map[string]*entry),
		lastKnown: make(map[string]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.cond = stdsync.NewCond(&q.mu)
	if q.metrics == nil {
		q.metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	}
	if q.breaker == nil {
		q.breaker = resilience.New(resilience.Settings{})
	}
	q.sub = tree.Subscribe(q.onEvent)
	return q
}

// onEvent maps tree mutations to sync intents. Sync-originated events are
// ignored so pulls never feed back into the queue.
func (q *Queue) onEvent(ev vfs.Event) {
	switch ev.Kind {
	case vfs.EventCreated, vfs.EventModified:
		q.Enqueue(ev.Path, Upsert)
	case vfs.EventDeleted:
		q.Enqueue(ev.Path, Remove)
	case vfs.EventRenamed:
		q.Enqueue(ev.OldPath, Remove)
		q.Enqueue(ev.Path, Upsert)
	}
}

// Enqueue registers a sync intent for path. A Pending operation on the same
// path coalesces; an InFlight operation gets one follower queued behind it.
func (q *Queue) Enqueue(path string, kind OpKind) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	e := q.entries[path]
	if e == nil {
		e = &entry{}
		q.entries[path] = e
	}

	now := time.Now()
	switch e.state {
	case stateIdle:
		e.op = &operation{kind: kind, enqueuedAt: now}
		e.state = statePending
		e.lastErr = nil
		e.op.timer = time.AfterFunc(q.cfg.Debounce, func() { q.fire(path) })
	case statePending:
		// Coalesce: latest intent wins, timer restarts, attempts reset.
		e.op.kind = kind
		e.op.enqueuedAt = now
		e.op.attempts = 0
		e.op.timer.Reset(q.cfg.Debounce)
	case stateInFlight:
		e.follower = &operation{kind: kind, enqueuedAt: now}
	}
}

// fire moves a Pending operation in flight when its timer expires.
func (q *Queue) fire(path string) {
	q.mu.Lock()
	e := q.entries[path]
	if e == nil || e.state != statePending || q.closed {
		q.mu.Unlock()
		return
	}
	op := e.op
	op.timer.Stop()
	e.state = stateInFlight
	q.wg.Add(1)
	q.mu.Unlock()

	go q.run(path, op)
}

func (q *Queue) run(path string, op *operation) {
	defer q.wg.Done()

	q.metrics.InFlight.Inc()
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.OpTimeout)
	node, err := q.reconcile(ctx, path, op.kind)
	cancel()
	q.metrics.InFlight.Dec()
	q.metrics.Duration.Observe(time.Since(started).Seconds())

	q.complete(path, op, node, err)
}

func (q *Queue) complete(path string, op *operation, node *vfs.Node, err error) {
	q.mu.Lock()
	e := q.entries[path]
	if e == nil {
		q.mu.Unlock()
		return
	}

	var events []vfs.Event

	switch {
	case err == nil:
		q.lastSync = time.Now()
		e.lastErr = nil
		q.promoteLocked(path, e)
		events = append(events, vfs.Event{Kind: vfs.EventSynced, Path: path, Node: node})

	case isTransient(err):
		op.attempts++
		if op.attempts < q.cfg.MaxAttempts {
			// Back off and retry; a follower queued meanwhile folds in.
			if e.follower != nil {
				op.kind = e.follower.kind
				e.follower = nil
			}
			e.state = statePending
			delay := q.backoff(op.attempts)
			op.timer = time.AfterFunc(delay, func() { q.fire(path) })
			q.metrics.Retries.Inc()
			q.log.Warn("sync attempt failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", op.attempts),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		} else {
			q.metrics.Failures.Inc()
			e.lastErr = err
			e.failedKind = op.kind
			q.promoteLocked(path, e)
			events = append(events, vfs.Event{Kind: vfs.EventSyncFailed, Path: path, Err: err})
			q.log.Error("sync abandoned after retries", zap.String("path", path), zap.Error(err))
		}

	default:
		// Permanent rejection: no retry.
		q.metrics.Failures.Inc()
		e.lastErr = err
		e.failedKind = op.kind
		q.promoteLocked(path, e)
		events = append(events, vfs.Event{Kind: vfs.EventSyncFailed, Path: path, Err: err})
		q.log.Error("sync rejected by remote", zap.String("path", path), zap.Error(err))
	}

	q.cond.Broadcast()
	q.mu.Unlock()

	for _, ev := range events {
		q.tree.Events().Publish(ev)
	}
}

// promoteLocked finishes an in-flight operation: the follower, if any,
// becomes the next Pending operation, otherwise the path goes Idle. Entries
// with a retained error stay for Status and Retry.
func (q *Queue) promoteLocked(path string, e *entry) {
	if e.follower != nil {
		e.op = e.follower
		e.follower = nil
		e.state = statePending
		e.op.timer = time.AfterFunc(q.cfg.Debounce, func() { q.fire(path) })
		return
	}
	e.op = nil
	e.state = stateIdle
	if e.lastErr == nil {
		delete(q.entries, path)
	}
}

func (q *Queue) backoff(attempts int) time.Duration {
	d := q.cfg.BackoffBase
	for i := 1; i < attempts && d < q.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > q.cfg.BackoffCap {
		d = q.cfg.BackoffCap
	}
	return d
}

func isTransient(err error) bool {
	return errors.Is(err, storage.ErrUnavailable) ||
		errors.Is(err, resilience.ErrOpen) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Status returns the sync snapshot for one path.
func (q *Queue) Status(path string) PathStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := PathStatus{Path: path, State: StateIdle}
	e := q.entries[path]
	if e == nil {
		return st
	}
	switch e.state {
	case statePending:
		st.State = StatePending
		st.Attempts = e.op.attempts
		st.EnqueuedAt = e.op.enqueuedAt
	case stateInFlight:
		st.State = StateInFlight
		st.Attempts = e.op.attempts
		st.EnqueuedAt = e.op.enqueuedAt
	}
	// A retained error marks the path Errored only while nothing newer is
	// queued; a live Pending or InFlight operation wins, with the prior
	// error still surfaced alongside it.
	if e.lastErr != nil {
		st.Error = e.lastErr.Error()
		if e.state == stateIdle {
			st.State = StateError
		}
	}
	return st
}

// Global summarizes the whole queue.
func (q *Queue) Global() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Summary{Overall: StateIdle, LastSync: q.lastSync}
	for _, e := range q.entries {
		switch e.state {
		case statePending:
			s.Pending++
		case stateInFlight:
			s.InFlight++
		}
		if e.lastErr != nil {
			s.Errors++
		}
	}
	switch {
	case s.InFlight > 0:
		s.Overall = StateInFlight
	case s.Pending > 0:
		s.Overall = StatePending
	case s.Errors > 0:
		s.Overall = StateError
	}
	return s
}

// Flush bypasses all debounce windows and waits for the queue to drain or
// the context to end.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	for path, e := range q.entries {
		if e.state == statePending && e.op.timer.Stop() {
			q.startLocked(path, e)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for q.busyLocked() {
		if ctx.Err() != nil {
			q.mu.Unlock()
			return ctx.Err()
		}
		q.cond.Wait()
	}
	q.mu.Unlock()
	return nil
}

func (q *Queue) busyLocked() bool {
	for _, e := range q.entries {
		if e.state != stateIdle {
			return true
		}
	}
	return false
}

// startLocked moves a Pending entry in flight immediately.
func (q *Queue) startLocked(path string, e *entry) {
	op := e.op
	e.state = stateInFlight
	q.wg.Add(1)
	go q.run(path, op)
}

// Retry re-enqueues the dropped operation for a path that previously
// reported sync_failed, skipping the debounce window.
func (q *Queue) Retry(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("sync: queue closed")
	}

	e := q.entries[path]
	if e == nil || e.lastErr == nil {
		return fmt.Errorf("sync: no failed operation for %s", path)
	}
	if e.state != stateIdle {
		// Already queued again; the retained error clears on completion.
		return nil
	}
	e.lastErr = nil
	e.op = &operation{kind: e.failedKind, enqueuedAt: time.Now()}
	q.startLocked(path, e)
	return nil
}

// Close detaches from the tree, cancels pending timers, and waits for
// in-flight operations to finish. Pending operations are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.tree.Unsubscribe(q.sub)
	for _, e := range q.entries {
		if e.state == statePending {
			e.op.timer.Stop()
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}
