// Package pipeline connects the feed session to storage: each frame is
// normalized, appended to the sink, and optionally mirrored to Kafka.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/blitz-stream-collector/internal/domain"
	"github.com/couchcryptid/blitz-stream-collector/internal/observability"
)

// RecordSink durably stores normalized records.
type RecordSink interface {
	Append(rec domain.Record) error
}

// RecordPublisher mirrors records to a secondary transport.
type RecordPublisher interface {
	Publish(ctx context.Context, rec domain.Record) error
}

// Collector is the session's frame handler. Frames are processed one at a
// time in wire order; normalization never fails, and downstream failures
// are absorbed so the session keeps receiving.
type Collector struct {
	sink      RecordSink
	publisher RecordPublisher // nil when the Kafka mirror is disabled
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Collector. publisher may be nil.
func New(sink RecordSink, publisher RecordPublisher, logger *slog.Logger, metrics *observability.Metrics) *Collector {
	return &Collector{
		sink:      sink,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness reports ready once at least one record has been stored.
func (c *Collector) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no records stored yet")
	}
	return nil
}

// HandleFrame normalizes and stores one frame. A sink failure drops the
// record with a log line and a counter bump; it never propagates, because a
// returned error would only tear down a healthy feed connection.
func (c *Collector) HandleFrame(ctx context.Context, frame []byte) error {
	rec := domain.Normalize(frame)
	c.metrics.RecordsByType.WithLabelValues(rec.DataType).Inc()

	if err := c.sink.Append(rec); err != nil {
		c.metrics.RecordsDropped.Inc()
		c.logger.Error("record dropped", "error", err, "data_type", rec.DataType)
		return nil
	}
	c.metrics.RecordsStored.Inc()
	c.ready.Store(true)

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, rec); err != nil {
			c.metrics.PublishErrors.Inc()
			c.logger.Warn("kafka publish failed", "error", err)
		} else {
			c.metrics.RecordsPublished.Inc()
		}
	}
	return nil
}
