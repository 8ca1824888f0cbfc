// Package journal keeps a persistent record of device lifecycle events.
//
// A Journal is a device.Observer. Every open, close, acquire and release is
// appended to the journal_events table and every discarded malformed message
// to journal_drops. Devices call observers with their locks held, so the
// Journal only enqueues; a single writer goroutine drains the queue into
// SQLite. When the queue is full new records are dropped and counted.
//
// Usage:
//
//	j, err := journal.New(ctx, journal.NewSQLiteRepository(db.DB), cfg.Database.JournalBuffer)
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//	dev.SetObserver(device.Observers(j, metrics))
//
//	entries, err := j.List(ctx, journal.Query{Device: "keys", Limit: 20})
package journal
