package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcore/backend/internal/ot"
)

func testDispatcherOptions() KafkaDispatcherOptions {
	return KafkaDispatcherOptions{
		QueueSize:   16,
		Workers:     2,
		MaxRetry:    2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}
}

func TestKafkaDispatcher_SendsEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var evt DocOpEvent
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.DocID != "d1" || len(evt.Ops) != 1 || evt.Ops[0] != ot.Insert(0, "x") {
			return fmt.Errorf("unexpected event %+v", evt)
		}
		return nil
	})

	d := NewKafkaDispatcher(producer, "doc-ops", NewSemaphoreControl(1), testDispatcherOptions())
	err := d.Enqueue(context.Background(), DocOpEvent{EventType: EventOpApplied, DocID: "d1", Ops: []ot.Op{ot.Insert(0, "x")}})
	require.NoError(t, err)

	d.Close()
	require.NoError(t, producer.Close())
}

func TestKafkaDispatcher_MessageKeyAndHeaders(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "d7" || msg.Topic != "doc-ops" {
			return fmt.Errorf("unexpected key %q topic %q", key, msg.Topic)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers["eventType"] != EventMetaSet || headers["revision"] != "12" {
			return fmt.Errorf("unexpected headers %v", headers)
		}
		return nil
	})

	d := NewKafkaDispatcher(producer, "doc-ops", nil, testDispatcherOptions())
	require.NoError(t, d.Enqueue(context.Background(), DocOpEvent{EventType: EventMetaSet, DocID: "d7", Revision: 12}))

	d.Close()
	require.NoError(t, producer.Close())
}

func TestKafkaDispatcher_RetriesThenSucceeds(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	opt := testDispatcherOptions()
	opt.Workers = 1
	d := NewKafkaDispatcher(producer, "doc-ops", nil, opt)
	require.NoError(t, d.Enqueue(context.Background(), DocOpEvent{EventType: EventMetaSet, DocID: "d1"}))

	d.Close()
	require.NoError(t, producer.Close())
}

func TestKafkaDispatcher_DropsAfterMaxRetry(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	opt := testDispatcherOptions()
	opt.Workers = 1
	d := NewKafkaDispatcher(producer, "doc-ops", nil, opt)
	require.NoError(t, d.Enqueue(context.Background(), DocOpEvent{DocID: "d1"}))

	d.Close()
	require.NoError(t, producer.Close())
}

func TestKafkaDispatcher_EnqueueAfterClose(t *testing.T) {
	d := NewKafkaDispatcher(nil, "", nil, testDispatcherOptions())
	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Enqueue(context.Background(), DocOpEvent{}), ErrDispatcherClosed)
}

func TestKafkaDispatcher_EnqueueTimesOutWhenFull(t *testing.T) {
	// 没有 worker 能及时消费：信号量被占满，worker 卡在 Acquire
	sem := NewSemaphoreControl(1)
	require.NoError(t, sem.Acquire(context.Background()))

	opt := testDispatcherOptions()
	opt.QueueSize, opt.Workers = 1, 1
	d := NewKafkaDispatcher(nil, "", sem, opt)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = d.Enqueue(ctx, DocOpEvent{DocID: "d1"})
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, sem.Release())
	d.Close()
}

func TestKafkaDispatcher_Backoff(t *testing.T) {
	d := &KafkaDispatcher{baseBackoff: 50 * time.Millisecond, maxBackoff: time.Second}
	assert.Equal(t, 50*time.Millisecond, d.backoff(0))
	assert.Equal(t, 400*time.Millisecond, d.backoff(3))
	assert.Equal(t, time.Second, d.backoff(10))
}
