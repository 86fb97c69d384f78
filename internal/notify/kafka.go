package notify

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// KafkaNotifier publishes messages to a topic, keyed by recipient so one
// user's notifications stay ordered within a partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka connects a synchronous producer to the brokers.
func NewKafka(brokers []string, topic string) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "notify: create kafka producer")
	}
	return NewKafkaWithProducer(producer, topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = "news-intel.notifications"
	}
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (k *KafkaNotifier) Notify(_ context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.Recipient),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return eris.Wrapf(err, "notify: publish %s to %s", msg.Kind, k.topic)
	}
	zap.L().Debug("notify: published",
		zap.String("topic", k.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() error {
	return eris.Wrap(k.producer.Close(), "notify: close kafka producer")
}
