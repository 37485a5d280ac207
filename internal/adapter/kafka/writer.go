package kafka

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/blitz-stream-collector/internal/config"
	"github.com/couchcryptid/blitz-stream-collector/internal/domain"
)

// Writer mirrors normalized records to a Kafka topic.
// It implements pipeline.RecordPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured mirror topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish sends one record to the mirror topic. The sink remains the source
// of truth; callers treat publish failures as non-fatal.
func (w *Writer) Publish(ctx context.Context, rec domain.Record) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Record into a Kafka message. The capture
// timestamp keys the message so replays of the same capture land in the
// same partition.
func serializeToMessage(rec domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Timestamp.Format(domain.TimeFormat)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "data_type", Value: []byte(rec.DataType)},
			{Key: "captured_at", Value: []byte(rec.Timestamp.Format(domain.TimeFormat))},
		},
	}, nil
}
