package kafka

import (
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type Producer struct {
	Sync  sarama.SyncProducer
	Async sarama.AsyncProducer
}

func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Retry.Backoff = time.Second
	config.Version = sarama.V2_5_0_0

	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	return config
}

func NewProducer(brokers []string, log *zap.Logger) (*Producer, error) {
	config := NewConfig()
	sp, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	ap, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		_ = sp.Close()
		return nil, err
	}
	return NewProducerFrom(sp, ap, log), nil
}

// NewProducerFrom 包装已有的 producer (测试中传入 sarama/mocks)
func NewProducerFrom(sp sarama.SyncProducer, ap sarama.AsyncProducer, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if ap != nil {
		go func() {
			for err := range ap.Errors() {
				log.Error("kafka async produce failed", zap.String("topic", err.Msg.Topic), zap.Error(err.Err))
			}
		}()
		go func() {
			for range ap.Successes() {
			}
		}()
	}
	return &Producer{Sync: sp, Async: ap}
}

func (p *Producer) SendSync(topic string, data []byte, headers ...sarama.RecordHeader) error {
	_, _, err := p.Sync.SendMessage(&sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(data),
		Headers: headers,
	})
	return err
}

func (p *Producer) SendAsync(topic string, data []byte) {
	p.Async.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	}
}

// Publish 以 JSON 编码 v 并同步发送，type 头用于消费端按类型分发
func (p *Producer) Publish(topic, typ string, v interface{}) error {
	data, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return p.SendSync(topic, data, sarama.RecordHeader{Key: []byte("type"), Value: []byte(typ)})
}

func (p *Producer) Close() error {
	var first error
	if p.Async != nil {
		first = p.Async.Close()
	}
	if p.Sync != nil {
		if err := p.Sync.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
