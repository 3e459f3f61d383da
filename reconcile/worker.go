package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	redisAdapter "solbid/adapters/redis"
	"solbid/store"
)

// Worker 重做協調者落庫失敗的寫入
//
// 重試流裡的每筆請求都對應一筆已確認的帳本交易，所以只能成功或進
// dead-letter 等人工對帳，不能默默丟掉
type Worker struct {
	consumer redisAdapter.IGroupConsumer[PersistRequest]
	store    store.IGameStore
	logger   *slog.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	closed   bool
}

// NewWorker 建立一個新的重試 worker
func NewWorker(consumer redisAdapter.IGroupConsumer[PersistRequest], gameStore store.IGameStore, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer: consumer,
		store:    gameStore,
		logger:   logger.With(slog.String("caller", "PersistWorker")),
		closed:   true,
	}
}

// Start 啟動重試迴圈
func (w *Worker) Start() error {
	const op = "Worker.Start"
	if !w.closed {
		return nil
	}
	if err := w.consumer.Start(); err != nil {
		return fmt.Errorf("[%s] err=%w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.closed = false

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for msg := range w.consumer.Subscribe() {
			w.handle(ctx, msg)
		}
	}()
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *redisAdapter.Message[PersistRequest]) {
	req := msg.Data
	logger := w.logger.With(slog.String("signature", req.Signature), slog.String("kind", string(req.Kind)))

	if err := w.apply(ctx, req); err != nil {
		// Close 取消的寫入不是毒訊息，不 ack 也不進 dead-letter，
		// 留在 pending 等下次啟動時重新投遞
		if ctx.Err() != nil {
			logger.Info("retry persist interrupted by shutdown", slog.Any("error", err))
			return
		}
		logger.Error("retry persist failed", slog.Any("error", err))
		if failErr := msg.Fail(ctx, err); failErr != nil {
			logger.Error("failed to dead-letter persist request", slog.Any("error", failErr))
		}
		return
	}

	if err := msg.Done(ctx); err != nil {
		logger.Error("failed to ack persist request", slog.Any("error", err))
		return
	}
	logger.Info("retry persist succeeded")
}

func (w *Worker) apply(ctx context.Context, req PersistRequest) error {
	var err error
	switch req.Kind {
	case PersistCreate:
		game, player, bid := req.Game, req.Player, req.Bid
		err = w.store.CreateGame(ctx, &game, &player, &bid)
	case PersistAppend:
		game, player, bid := req.Game, req.Player, req.Bid
		err = w.store.AppendBid(ctx, &game, &player, &bid)
	case PersistFinalize:
		game, finisher, bid := req.Game, req.Player, req.Bid
		err = w.store.FinalizeGame(ctx, &game, req.Players, &finisher, &bid)
	default:
		return fmt.Errorf("unknown persist kind %q", req.Kind)
	}

	// 同場比賽的寫入可能在第一次嘗試和重試之間已經成功過
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}

// Close 停止重試迴圈
func (w *Worker) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.cancel()
	if err := w.consumer.Close(); err != nil && !errors.Is(err, redisAdapter.ErrConsumerClosed) {
		w.logger.Error("failed to close consumer", slog.Any("error", err))
	}
	w.wg.Wait()
	w.logger.Info("persist worker stopped")
}
