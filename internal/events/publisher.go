package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/aihub/knowledge-qa/internal/config"
	"go.uber.org/zap"
)

// 事件类型
const (
	EventDocumentIngested = "document.ingested"
	EventDocumentFailed   = "document.failed"
)

// DocumentEvent 文档入库事件
type DocumentEvent struct {
	Type       string    `json:"type"`
	DocumentID int64     `json:"document_id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event DocumentEvent) error
	Close() error
}

// NoopPublisher 未启用Kafka时使用
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event DocumentEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

// KafkaPublisher 通过Kafka同步生产者发布事件
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewProducerConfig 生产者配置
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Timeout = 10 * time.Second
	return cfg
}

// NewKafkaPublisher 使用已有的生产者创建发布器
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// NewPublisher 根据配置创建发布器，未启用时返回NoopPublisher
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka enabled but no brokers configured")
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	if logger != nil {
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	}
	return NewKafkaPublisher(producer, cfg.Topic, logger), nil
}

// Publish 发送事件，key 为文档ID以保证同一文档的事件有序
func (p *KafkaPublisher) Publish(ctx context.Context, event DocumentEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.DocumentID, 10)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	p.logger.Debug("Document event published",
		zap.String("type", event.Type),
		zap.Int64("document_id", event.DocumentID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
