package ledger

import (
	"context"
	"sync"
	"time"
)

// InMemory is an in-process topic log for tests and local runs.
//
// Append assigns strictly increasing consensus timestamps per topic, so two
// entries published back-to-back still order deterministically even when the
// wall clock does not advance between them.
type InMemory struct {
	mu     sync.RWMutex
	topics map[TopicID][]Entry
	now    func() time.Time
}

// NewInMemory creates an empty in-memory log.
func NewInMemory() *InMemory {
	return &InMemory{
		topics: make(map[TopicID][]Entry),
		now:    time.Now,
	}
}

// NewInMemoryWithClock creates an in-memory log with an injected clock.
func NewInMemoryWithClock(now func() time.Time) *InMemory {
	return &InMemory{
		topics: make(map[TopicID][]Entry),
		now:    now,
	}
}

// Append publishes contents to the topic and returns the assigned entry.
func (l *InMemory) Append(_ context.Context, topic TopicID, contents []byte) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.topics[topic]
	ts := l.now()
	if n := len(entries); n > 0 && !entries[n-1].ConsensusTime.Before(ts) {
		ts = entries[n-1].ConsensusTime.Add(time.Nanosecond)
	}

	stored := make([]byte, len(contents))
	copy(stored, contents)
	entry := Entry{
		ConsensusTime: ts,
		Sequence:      uint64(len(entries) + 1),
		Contents:      stored,
	}
	l.topics[topic] = append(entries, entry)
	return entry, nil
}

// Collect returns a snapshot of the topic. The in-memory log has no delivery
// latency, so the listening window collapses to an immediate read; the
// context is still honored so callers exercise the same cancellation paths
// as against a real log.
func (l *InMemory) Collect(ctx context.Context, topic TopicID, _ time.Duration) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.topics[topic]
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		contents := make([]byte, len(entry.Contents))
		copy(contents, entry.Contents)
		entry.Contents = contents
		out[i] = entry
	}
	return out, nil
}

// Verify interfaces are satisfied.
var (
	_ Reader = (*InMemory)(nil)
	_ Writer = (*InMemory)(nil)
)
