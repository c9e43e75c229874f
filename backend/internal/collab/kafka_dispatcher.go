package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrDispatcherClosed = errors.New("DISPATCHER_CLOSED")

// EventSink 服务只依赖“能入队”，方便测试替换
type EventSink interface {
	Enqueue(ctx context.Context, evt DocOpEvent) error
}

// KafkaDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// - 不阻塞主提交流程（Submit 只负责入队）
// - Kafka 短暂阻塞时靠队列吸收，后台慢慢补发
// - 队列满时等待到 ctx 超时后放弃，避免内存无限增长
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan DocOpEvent
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	// 限制并发的 SendMessage 数量
	kafkaSem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, kafkaSem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.MaxBackoff < opt.BaseBackoff {
		opt.MaxBackoff = opt.BaseBackoff
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan DocOpEvent, opt.QueueSize),
		done:        make(chan struct{}),
		kafkaSem:    kafkaSem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.start()
	return d
}

// Enqueue 把事件放入本地队列，队列满时等待直到 ctx 超时。
// Kafka 不要求强一致性，不是每个事件都必须送达
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt DocOpEvent) error {
	select {
	case <-d.done:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- evt:
		return nil
	case <-d.done:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收新事件，把队列里已有的事件发完后返回
func (d *KafkaDispatcher) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for {
		select {
		case evt := <-d.queue:
			d.sendWithRetry(workerID, evt)
		case <-d.done:
			// 关闭后把剩余事件发完
			for {
				select {
				case evt := <-d.queue:
					d.sendWithRetry(workerID, evt)
				default:
					return
				}
			}
		}
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt DocOpEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.kafkaSem != nil {
			// worker 允许一直等待（不会影响主链路）
			_ = d.kafkaSem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.kafkaSem != nil {
			_ = d.kafkaSem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			log.Printf("kafka send failed, drop event type=%s doc=%s op=%s rev=%d worker=%d err=%v",
				evt.EventType, evt.DocID, evt.OperationID, evt.Revision, workerID, err)
			return
		}

		// 退避，每次退避时间X2
		time.Sleep(d.backoff(attempt))
	}
}

func (d *KafkaDispatcher) backoff(attempt int) time.Duration {
	b := d.baseBackoff * time.Duration(1<<attempt)
	if b > d.maxBackoff || b <= 0 {
		b = d.maxBackoff
	}
	return b
}

func (d *KafkaDispatcher) sendOnce(evt DocOpEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	// 消费方按 header 过滤事件类型，不用先解析 value
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(evt.EventType)},
			{Key: []byte("revision"), Value: []byte(strconv.FormatUint(evt.Revision, 10))},
		},
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
