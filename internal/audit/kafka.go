package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink streams findings to a topic keyed by subject, for
// compliance tooling that consumes the audit trail centrally.
func NewKafkaSink(brokers []string, topic string) Sink {
	return &kafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (s *kafkaSink) Record(ctx context.Context, f Finding) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(f.Kind + ":" + f.Subject),
		Value: data,
	})
}

func (s *kafkaSink) Close() error {
	return s.writer.Close()
}
