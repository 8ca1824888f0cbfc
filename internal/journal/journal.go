package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-midi/internal/device"
)

// writeTimeout bounds a single insert by the writer goroutine.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the journal.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// record is a queued entry or drop; exactly one is set.
type record struct {
	entry *Entry
	drop  *Drop
}

// Journal records device lifecycle events asynchronously.
//
// Thread Safety: All methods are safe for concurrent use. Observer methods
// never block.
type Journal struct {
	device.NopObserver

	repo   Repository
	logger Logger
	queue  chan record
	seq    atomic.Int64

	pending  atomic.Int64 // queued or being written
	overflow atomic.Int64
	failures atomic.Int64

	// mu guards closed and sends on queue against Close.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a journal writing to repo and starts its writer. buffer is the
// number of records queued before new ones are dropped.
//
// Parameters:
//   - ctx: Context for reading the last stored sequence number
//   - repo: Storage for the records
//   - buffer: Queue capacity (minimum 1)
//
// Returns:
//   - *Journal: Running journal; call Close to flush and stop it
//   - error: If the stored sequence cannot be read
func New(ctx context.Context, repo Repository, buffer int) (*Journal, error) {
	last, err := repo.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	if buffer < 1 {
		buffer = 1
	}

	j := &Journal{
		repo:   repo,
		logger: noopLogger{},
		queue:  make(chan record, buffer),
		done:   make(chan struct{}),
	}
	j.seq.Store(last)

	go j.run()
	return j, nil
}

// SetLogger sets the logger. Call it before the journal is attached to a
// device.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	j.logger = logger
}

// LifecycleChanged queues the event.
func (j *Journal) LifecycleChanged(ev device.Event) {
	e := &Entry{
		ID:           uuid.NewString(),
		Seq:          j.seq.Add(1),
		Time:         ev.Time,
		Device:       ev.Device,
		Kind:         string(ev.Kind),
		EndpointID:   ev.EndpointID,
		EndpointKind: string(ev.EndpointKind),
		RefCounted:   ev.RefCounted,
		RefCount:     ev.RefCount,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	j.enqueue(record{entry: e})
}

// Dropped queues a record of discarded input.
func (j *Journal) Dropped(deviceName string, form device.Form, err error) {
	d := &Drop{
		ID:     uuid.NewString(),
		Seq:    j.seq.Add(1),
		Time:   time.Now(),
		Device: deviceName,
		Form:   string(form),
	}
	if err != nil {
		d.Error = err.Error()
	}
	j.enqueue(record{drop: d})
}

func (j *Journal) enqueue(r record) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	j.pending.Add(1)
	select {
	case j.queue <- r:
	default:
		j.pending.Add(-1)
		j.overflow.Add(1)
	}
}

// run drains the queue until Close.
func (j *Journal) run() {
	defer close(j.done)
	for r := range j.queue {
		j.write(r)
		j.pending.Add(-1)
	}
}

func (j *Journal) write(r record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if r.entry != nil {
		err = j.repo.InsertEntry(ctx, *r.entry)
	} else {
		err = j.repo.InsertDrop(ctx, *r.drop)
	}
	if err != nil {
		j.failures.Add(1)
		j.logger.Error("journal write failed", "error", err)
	}
}

// Close stops accepting records, writes everything queued and waits for the
// writer. Closing twice is a no-op.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	if n := j.overflow.Load(); n > 0 {
		j.logger.Warn("journal queue overflowed", "dropped_records", n)
	}
	return nil
}

// Flush waits until every record queued so far has been written, or ctx is
// done.
func (j *Journal) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for j.pending.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// List returns entries matching q, newest first.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	return j.repo.ListEntries(ctx, q)
}

// Drops returns drop records matching q, newest first.
func (j *Journal) Drops(ctx context.Context, q Query) ([]Drop, error) {
	return j.repo.ListDrops(ctx, q)
}

// Prune deletes records older than olderThan.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	return j.repo.Prune(ctx, olderThan)
}

// Stats reports records lost to a full queue and failed writes.
func (j *Journal) Stats() (overflow, failures int64) {
	return j.overflow.Load(), j.failures.Load()
}
