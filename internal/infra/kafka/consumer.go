package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Consumer struct {
	Group sarama.ConsumerGroup
	log   *zap.Logger
}

func NewConsumer(brokers []string, group string, log *zap.Logger) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Return.Errors = true

	g, err := sarama.NewConsumerGroup(brokers, group, cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{Group: g, log: log}, nil
}

// Consume 在后台持续消费 topics，直到 ctx 结束或 group 关闭
func (c *Consumer) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) {
	go func() {
		for err := range c.Group.Errors() {
			c.log.Error("kafka consumer error", zap.Error(err))
		}
	}()

	go func() {
		for {
			err := c.Group.Consume(ctx, topics, handler)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.Warn("kafka consume session ended", zap.Error(err))
			}
		}
	}()
}

func (c *Consumer) Close() error {
	return c.Group.Close()
}
