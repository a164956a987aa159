package trust

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"atlasid/internal/ledger"
	"atlasid/internal/platform/tracer"
	trustmetrics "atlasid/internal/trust/metrics"
	dErrors "atlasid/pkg/domain-errors"
)

// topicMessage is the wire shape of a trust topic entry. A large document is
// split across several entries sharing a versionId, each carrying one
// fragment in Data; a small document is published as a single entry whose
// contents are the document itself.
type topicMessage struct {
	ID         string `json:"id"`
	VersionID  string `json:"versionId,omitempty"`
	ChunkIndex int    `json:"chunkIndex,omitempty"`
	ChunkTotal int    `json:"chunkTotal,omitempty"`
	Data       string `json:"data,omitempty"`

	consensusTime time.Time
	raw           []byte
}

// Resolver reconstructs trust documents from the configured log topic.
//
// Every call re-collects the topic within the configured window; results are
// deliberately not cached so a freshly published document version takes
// effect on the next resolution.
type Resolver struct {
	reader  ledger.Reader
	topic   ledger.TopicID
	window  time.Duration
	tracer  tracer.Tracer
	logger  *slog.Logger
	metrics *trustmetrics.Metrics
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithTracer injects a tracer. Defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// WithLogger injects a logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithMetrics injects resolver metrics. Nil metrics are skipped.
func WithMetrics(m *trustmetrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver over the given topic. The window bounds how
// long a single resolution listens for topic entries.
func NewResolver(reader ledger.Reader, topic ledger.TopicID, window time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		reader: reader,
		topic:  topic,
		window: window,
		tracer: tracer.NewNoop(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reconstructs the trust document whose id equals authorityDID.
//
// The latest entry by consensus timestamp wins. Chunked publications are
// reassembled in chunk order and fail closed when any declared chunk was not
// observed within the window.
func (r *Resolver) Resolve(ctx context.Context, authorityDID string) (*Resolution, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, tracer.SpanResolveDocument,
		tracer.String(tracer.AttrAuthorityDID, authorityDID),
		tracer.String(tracer.AttrTopicID, string(r.topic)),
	)

	resolution, err := r.resolve(ctx, span, authorityDID)
	span.End(err)
	if r.metrics != nil {
		r.metrics.ObserveResolve(start, err == nil)
	}
	return resolution, err
}

func (r *Resolver) resolve(ctx context.Context, span tracer.Span, authorityDID string) (*Resolution, error) {
	entries, err := r.collect(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "trust document resolution timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "trust topic collection failed")
	}

	span.SetAttributes(tracer.Int64(tracer.AttrEntryCount, int64(len(entries))))

	candidates := r.decode(ctx, entries, authorityDID)
	if len(candidates) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no trust document found for "+authorityDID)
	}

	latest := candidates[0]
	for _, msg := range candidates[1:] {
		if msg.consensusTime.After(latest.consensusTime) {
			latest = msg
		}
	}

	var doc Document
	span.SetAttributes(tracer.Bool(tracer.AttrChunked, latest.ChunkTotal > 1))
	if latest.ChunkTotal > 1 {
		assembled, err := reassemble(latest, candidates)
		if err != nil {
			return nil, err
		}
		span.AddEvent("trust document reassembled",
			tracer.Int64("chunk_total", int64(latest.ChunkTotal)))
		if err := json.Unmarshal(assembled, &doc); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformedDocument, "assembled trust document is not valid JSON")
		}
	} else {
		// Unchunked publication: the entry itself is the document.
		if err := json.Unmarshal(latest.raw, &doc); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeMalformedDocument, "trust document is not valid JSON")
		}
	}

	if doc.ID != authorityDID {
		r.logger.WarnContext(ctx, "resolved document identity mismatch",
			"expected", authorityDID,
			"resolved", doc.ID,
		)
		return nil, dErrors.New(dErrors.CodeIdentityMismatch, "resolved trust document does not match the requested identifier")
	}

	return &Resolution{
		Document:          &doc,
		AuthorizedIssuers: doc.AuthorizedIssuers(),
	}, nil
}

// collect reads the topic in its own span so slow windows show up distinctly
// from the decode and reassembly work.
func (r *Resolver) collect(ctx context.Context) ([]ledger.Entry, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanCollectEntries,
		tracer.String(tracer.AttrTopicID, string(r.topic)),
		tracer.Duration(tracer.AttrCollectWindow, r.window),
	)
	entries, err := r.reader.Collect(ctx, r.topic, r.window)
	span.SetAttributes(tracer.Int64(tracer.AttrEntryCount, int64(len(entries))))
	span.End(err)
	return entries, err
}

// decode parses topic entries into messages for the requested authority.
// Entries that are not valid JSON, or that describe another identifier, are
// skipped rather than failing the resolution: the topic is shared and other
// publishers' noise must not block this authority's document.
func (r *Resolver) decode(ctx context.Context, entries []ledger.Entry, authorityDID string) []topicMessage {
	var candidates []topicMessage
	for _, entry := range entries {
		var msg topicMessage
		if err := json.Unmarshal(entry.Contents, &msg); err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable trust topic entry",
				"sequence", entry.Sequence,
				"error", err,
			)
			continue
		}
		if msg.ID != authorityDID {
			continue
		}
		msg.consensusTime = entry.ConsensusTime
		msg.raw = entry.Contents
		candidates = append(candidates, msg)
	}
	return candidates
}

// reassemble concatenates the chunk group the latest entry belongs to.
// The group is keyed by versionId, falling back to the consensus timestamp
// for publishers that omit it. Missing or duplicated chunk indices fail
// closed: a partially observed version must never parse as a document.
func reassemble(latest topicMessage, candidates []topicMessage) ([]byte, error) {
	sameVersion := func(m topicMessage) bool {
		if latest.VersionID != "" {
			return m.VersionID == latest.VersionID
		}
		return m.VersionID == "" && m.consensusTime.Equal(latest.consensusTime)
	}

	chunks := make(map[int]string, latest.ChunkTotal)
	for _, m := range candidates {
		if !sameVersion(m) {
			continue
		}
		if m.ChunkIndex < 0 || m.ChunkIndex >= latest.ChunkTotal {
			return nil, dErrors.New(dErrors.CodeMalformedDocument, "trust document chunk index out of range")
		}
		if _, dup := chunks[m.ChunkIndex]; dup {
			return nil, dErrors.New(dErrors.CodeMalformedDocument, "trust document chunk index duplicated")
		}
		chunks[m.ChunkIndex] = m.Data
	}

	if len(chunks) != latest.ChunkTotal {
		return nil, dErrors.New(dErrors.CodeMalformedDocument, "trust document chunk set is incomplete")
	}

	indices := make([]int, 0, len(chunks))
	for idx := range chunks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var assembled []byte
	for _, idx := range indices {
		assembled = append(assembled, chunks[idx]...)
	}
	return assembled, nil
}
