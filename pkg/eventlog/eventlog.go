package eventlog

import (
	"sync"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/models"
)

// DefaultCapacity bounds the in-memory history.
const DefaultCapacity = 100

// Sink receives every appended entry, after it has been stored. Sinks
// must not block; slow delivery is the sink's problem, not the log's.
type Sink func(entry models.LogEntry)

// Log is a bounded, most-recent-first buffer of operational events.
// Entries beyond the capacity are evicted oldest-first.
type Log struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	capacity int
	sinks    []Sink
	now      func() time.Time
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		now:      time.Now,
	}
}

// AddSink registers a fan-out target for live entries. Not safe to call
// concurrently with Append; wire sinks during startup.
func (l *Log) AddSink(sink Sink) {
	l.sinks = append(l.sinks, sink)
}

// Append stores a new entry at the head, evicts past capacity and
// delivers the entry to every sink.
func (l *Log) Append(logType models.LogType, message string) models.LogEntry {
	entry := models.NewLogEntry(logType, message, l.now())

	l.mu.Lock()
	l.entries = append([]models.LogEntry{entry}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
	l.mu.Unlock()

	for _, sink := range l.sinks {
		sink(entry)
	}

	return entry
}

// Snapshot returns up to n most recent entries, newest first.
func (l *Log) Snapshot(n int) []models.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]models.LogEntry, n)
	copy(out, l.entries[:n])
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
