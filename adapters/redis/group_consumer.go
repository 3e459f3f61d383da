package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrConsumerClosed = errors.New("consumer is closed")
)

// Message 封裝事件和確認所需資料
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// Done 確認事件已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 把事件移到 dead-letter stream 再確認
// 寫入失敗的持久化事件靠這條路徑留下可重放的紀錄
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	m.raw["error"] = failErr.Error()
	err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + ":dead-letter",
		Values: m.raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

type groupConsumerOptions struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
}

type GroupConsumerOption func(*groupConsumerOptions)

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger(logger *slog.Logger) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.logger = logger
	}
}

// WithGroupConsumerBufferSize 設置下游channel的緩衝大小
func WithGroupConsumerBufferSize(size int) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.bufferSize = size
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout(d time.Duration) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.blockTimeout = d
	}
}

// GroupConsumer 以 consumer group 讀事件，下游必須呼叫 Done 或 Fail
// 行程重啟後未確認的事件會先被重新投遞
type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    groupConsumerOptions
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption,
) (*GroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupConsumerOptions{
		logger:       slog.Default(),
		bufferSize:   1,
		blockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &GroupConsumer[T]{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		logger: options.logger.With(
			slog.String("caller", "GroupConsumer"),
			slog.String("stream", stream),
			slog.String("group", group),
			slog.String("consumer", consumer)),
		options: options,
	}, nil
}

func (s *GroupConsumer[T]) Start() error {
	const op = "GroupConsumer.Start"
	if !s.closed {
		return nil
	}

	err := s.client.XGroupCreateMkStream(context.Background(), s.stream, s.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("[%s] failed to create consumer group: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Message[T], s.options.bufferSize)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)

		// 先消化上次行程沒確認完的事件，再讀新事件
		cursor := "0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.group,
				Consumer: s.consumer,
				Streams:  []string{s.stream, cursor},
				Count:    1,
				Block:    s.options.blockTimeout,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				s.logger.Error("read group error", slog.Any("error", err))
				continue
			}
			if len(streams) == 0 || len(streams[0].Messages) == 0 {
				// pending 已讀完，切換到新事件
				cursor = ">"
				continue
			}

			raw := streams[0].Messages[0]
			if cursor != ">" {
				cursor = raw.ID
			}

			data, err := DecodeStreamValues[T](raw.Values)
			if err != nil {
				s.logger.Error("failed to decode message",
					slog.String("messageId", raw.ID),
					slog.Any("error", err))
				// 壞掉的事件直接進 dead-letter，不要卡住整條流
				msg := &Message[T]{client: s.client, messageID: raw.ID, stream: s.stream, group: s.group, raw: raw.Values}
				if failErr := msg.Fail(ctx, err); failErr != nil {
					s.logger.Error("failed to dead-letter message", slog.Any("error", failErr))
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case s.downStream <- &Message[T]{
				Data:      data,
				client:    s.client,
				messageID: raw.ID,
				stream:    s.stream,
				group:     s.group,
				raw:       raw.Values,
			}:
			}
		}
	}()
	return nil
}

// Subscribe 訂閱事件流
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

// Close 關閉消費者
func (s *GroupConsumer[T]) Close() error {
	if s.closed {
		return ErrConsumerClosed
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("group consumer closed")
	return nil
}
