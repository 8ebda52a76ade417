package kafka

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDLQ(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		assert.Equal(t, "orders.dead", m.Topic)
		v, err := m.Value.Encode()
		require.NoError(t, err)
		assert.Equal(t, `{"id":1}`, string(v))
		require.Len(t, m.Headers, 2)
		assert.Equal(t, "type", string(m.Headers[0].Key))
		assert.Equal(t, "x-exception", string(m.Headers[1].Key))
		assert.Equal(t, "boom", string(m.Headers[1].Value))
		return nil
	})

	msg := &sarama.ConsumerMessage{
		Topic:   "orders",
		Value:   []byte(`{"id":1}`),
		Headers: []*sarama.RecordHeader{{Key: []byte("type"), Value: []byte("created")}},
	}
	require.NoError(t, SendDLQ(sp, ".dead", msg, errors.New("boom")))
	require.NoError(t, sp.Close())
}

func TestPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		assert.JSONEq(t, `{"name":"x"}`, string(val))
		return nil
	})
	p := NewProducerFrom(sp, nil, nil)
	require.NoError(t, p.Publish("users", "created", map[string]string{"name": "x"}))
	require.NoError(t, p.Close())
}
