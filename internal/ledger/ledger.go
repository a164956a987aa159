// Package ledger defines the append-only distributed log primitive the
// verification pipeline reads from.
//
// The production deployment backs this with a consensus service topic client;
// the pipeline only depends on the small Reader/Writer interfaces so the
// in-memory log can stand in for tests and local runs. Entries carry a
// log-assigned consensus timestamp and sequence number; the log itself is
// ordered, immutable, and publicly readable.
package ledger

import (
	"context"
	"time"
)

// TopicID names a single append-only topic on the log.
type TopicID string

// Entry is one message observed on a topic.
type Entry struct {
	// ConsensusTime is the log-assigned timestamp. It is totally ordered
	// within a topic and is the only ordering the pipeline trusts.
	ConsensusTime time.Time

	// Sequence is the log-assigned sequence number within the topic.
	Sequence uint64

	// Contents is the raw published payload.
	Contents []byte
}

// Reader collects entries from a topic.
type Reader interface {
	// Collect returns the entries observed on the topic within a bounded
	// listening window. The call blocks for at most the window duration (or
	// until ctx is done) and returns whatever was observed by then. A
	// context cancellation or deadline produces ctx.Err(); backend outages
	// surface as sentinel.ErrUnavailable wraps.
	Collect(ctx context.Context, topic TopicID, window time.Duration) ([]Entry, error)
}

// Writer appends entries to a topic. Issuance and authority publication use
// it; the verification pipeline itself is read-only.
type Writer interface {
	Append(ctx context.Context, topic TopicID, contents []byte) (Entry, error)
}
