package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/olyamironova/eos-exchange/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	ev := &domain.MatchEvent{
		Owner:  "alice",
		Side:   domain.Buy,
		Symbol: "TOKEN",
		Fills:  []domain.Fill{{MakerID: 7, MakerOwner: "bob", Quantity: 10, Reference: 20}},
	}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("alice"), w.msgs[0].Key)

	var got domain.MatchEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, uint64(7), got.Fills[0].MakerID)
	assert.Equal(t, domain.Buy, got.Side)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducerPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}}
	assert.ErrorIs(t, p.Publish(context.Background(), &domain.MatchEvent{Owner: "alice"}), boom)
}

func TestNewProducerDoesNotBlockOnDelivery(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "fills", zap.NewNop())
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestCompletionLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	done := logCompletion(zap.New(core))

	done([]kafka.Message{{Key: []byte("alice")}}, nil)
	assert.Zero(t, logs.Len())

	done([]kafka.Message{{Key: []byte("alice")}, {Key: []byte("bob")}}, errors.New("broker down"))
	entries := logs.FilterMessage("kafka_delivery_failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["messages"])
}
