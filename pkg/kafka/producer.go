package kafka

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/crowdflash/crowdflash-server/pkg/config"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"go.uber.org/zap"
)

// Producer mirrors event log entries to a Kafka topic so show
// telemetry can be consumed outside the control server. Delivery is
// asynchronous and best-effort; a failed produce is logged, never
// surfaced to the event log itself.
type Producer struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewProducer(cfg *config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	producer := &Producer{
		producer: p,
		topic:    cfg.Topic,
		logger:   logger,
	}

	producer.wg.Add(1)
	go producer.handleDeliveryReports()

	return producer, nil
}

// Publish enqueues one event log entry. Implements eventlog.Sink.
func (p *Producer) Publish(entry models.LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error("Failed to marshal log entry", zap.Error(err))
		return
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(entry.Type),
		Value:          data,
	}, nil)
	if err != nil {
		p.logger.Error("Failed to produce log entry", zap.Error(err))
	}
}

func (p *Producer) handleDeliveryReports() {
	defer p.wg.Done()

	for ev := range p.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				p.logger.Warn("Log entry delivery failed",
					zap.Error(e.TopicPartition.Error))
			}
		case kafka.Error:
			p.logger.Error("Kafka error", zap.Error(e), zap.String("code", e.Code().String()))
		}
	}
}

func (p *Producer) Close() {
	p.logger.Info("Stopping Kafka producer")
	p.producer.Flush(5000)
	p.producer.Close()
	p.wg.Wait()
	p.logger.Info("Kafka producer stopped")
}
