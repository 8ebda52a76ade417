package kafka

import (
	"github.com/IBM/sarama"
)

// DefaultDLQSuffix 死信主题后缀
const DefaultDLQSuffix = ".dlq"

// SendDLQ 将原始消息 (含 headers) 转发到 <topic><suffix>
func SendDLQ(p sarama.SyncProducer, suffix string, msg *sarama.ConsumerMessage, reason error) error {
	if suffix == "" {
		suffix = DefaultDLQSuffix
	}
	headers := make([]sarama.RecordHeader, 0, len(msg.Headers)+1)
	for _, h := range msg.Headers {
		if h != nil {
			headers = append(headers, *h)
		}
	}
	if reason != nil {
		headers = append(headers, sarama.RecordHeader{Key: []byte("x-exception"), Value: []byte(reason.Error())})
	}
	_, _, err := p.SendMessage(&sarama.ProducerMessage{
		Topic:   msg.Topic + suffix,
		Key:     sarama.ByteEncoder(msg.Key),
		Value:   sarama.ByteEncoder(msg.Value),
		Headers: headers,
	})
	return err
}
