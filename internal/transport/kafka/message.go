package kafka

import (
	"time"

	mq "gnest/internal/infra/kafka"

	"github.com/IBM/sarama"
)

// TypeHeader 消息类型头，按它选择 per-type 链
const TypeHeader = "type"

// Message 交给主题处理器的输入
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Type      string
	Headers   map[string]string
	Value     []byte
	Timestamp time.Time
}

func newMessage(m *sarama.ConsumerMessage) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Timestamp,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		msg.Headers[string(h.Key)] = string(h.Value)
	}
	msg.Type = msg.Headers[TypeHeader]
	return msg
}

// Decode 按 JSON 解析 Value
func (m *Message) Decode(v any) error {
	return mq.DecodeJSON(m.Value, v)
}
