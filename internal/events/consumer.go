package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// EventHandler 事件处理函数
type EventHandler func(ctx context.Context, event DocumentEvent) error

// Consumer 文档事件消费者
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler EventHandler
	logger  *zap.Logger
}

// NewConsumerConfig 消费者配置
func NewConsumerConfig(fromOldest bool) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if fromOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Consumer.Return.Errors = true
	cfg.Version = sarama.V2_6_0_0
	return cfg
}

// NewConsumer 创建消费者组
func NewConsumer(brokers []string, groupID, topic string, fromOldest bool, handler EventHandler, logger *zap.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig(fromOldest))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		group:   group,
		topic:   topic,
		handler: handler,
		logger:  logger,
	}, nil
}

// Run 持续消费直到ctx取消
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	handler := &consumerGroupHandler{handle: c.handleMessage}
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
			c.logger.Error("Failed to consume messages", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close 关闭消费者
func (c *Consumer) Close() error {
	if c == nil || c.group == nil {
		return nil
	}
	return c.group.Close()
}

// handleMessage 解码并分发消息，格式错误的消息直接跳过
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) (bool, error) {
	var event DocumentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		c.logger.Warn("Skipping malformed document event",
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return true, nil
	}
	if err := c.handler(ctx, event); err != nil {
		return false, err
	}
	return true, nil
}

type consumerGroupHandler struct {
	handle func(ctx context.Context, message *sarama.ConsumerMessage) (bool, error)
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			mark, err := h.handle(session.Context(), message)
			if err != nil {
				// 不标记消息，等待重新投递
				continue
			}
			if mark {
				session.MarkMessage(message, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}
