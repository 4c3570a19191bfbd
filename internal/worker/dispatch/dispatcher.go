// Package dispatch はキュータスクのバックグラウンド発火処理を提供する。
// ディスパッチャと並列制御を含む。
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/metrics"
	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// TaskHandler はディスパッチされたタスクの処理インターフェース。
type TaskHandler interface {
	// Handle はタスクのペイロードを解釈して配信処理を行う。
	Handle(ctx context.Context, task *model.QueuedTask) error
}

// Dispatcher は発火時刻を過ぎたpendingタスクの取得と配信を行う。
// ティッカー間隔で発火対象タスクを取得し、
// semaphoreパターンで最大並列数を制御しながらハンドラーを実行する。
//
// タスクはハンドラー実行前にdispatchedへ遷移させる（クレーム）。
// クレームは条件付きUPDATEのため、複数ワーカーが同じタスクを
// 二重配信することはない。ハンドラーが失敗してもタスクは
// dispatchedのまま残し、キュー側でのリトライは行わない。
type Dispatcher struct {
	tasks          repository.TaskRepository
	handler        TaskHandler
	clock          clock.Clock
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	maxConcurrency int
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewDispatcher(
	tasks repository.TaskRepository,
	handler TaskHandler,
	clk clock.Clock,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	maxConcurrency int,
) *Dispatcher {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Dispatcher{
		tasks:          tasks,
		handler:        handler,
		clock:          clk,
		logger:         logger,
		metrics:        collector,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでディスパッチャを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("ディスパッチャを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", d.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := d.RunOnce(ctx); err != nil {
		d.logger.Error("ディスパッチサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("ディスパッチャを停止しました")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("ディスパッチサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は発火対象タスクを1回取得し、並列で配信を実行する。
// semaphoreパターンで最大並列数を制御する。
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := d.clock.Now()

	// 発火対象タスクを取得（FOR UPDATE SKIP LOCKED）
	tasks, err := d.tasks.ListDuePending(ctx, now)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		return nil
	}

	d.logger.Info("ディスパッチサイクルを開始します",
		slog.Int("task_count", len(tasks)),
	)

	sem := make(chan struct{}, d.maxConcurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(task *model.QueuedTask) {
			defer wg.Done()
			defer func() { <-sem }()
			d.dispatchOne(ctx, task)
		}(task)
	}

	wg.Wait()

	d.logger.Info("ディスパッチサイクルを完了しました",
		slog.Int("task_count", len(tasks)),
		slog.Duration("elapsed", time.Since(now)),
	)

	return nil
}

// dispatchOne は1タスクをクレームしてハンドラーへ渡す。
func (d *Dispatcher) dispatchOne(ctx context.Context, task *model.QueuedTask) {
	// クレーム: pendingのときのみdispatchedへ遷移。
	// falseは取り消し済みか他ワーカーが先行した場合で、処理しない。
	claimed, err := d.tasks.MarkDispatched(ctx, task.ID)
	if err != nil {
		d.logger.Error("タスクのクレームに失敗しました",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !claimed {
		return
	}

	if err := d.handler.Handle(ctx, task); err != nil {
		// ハンドラー失敗はdispatchedのまま残す（再試行しない）
		d.logger.Error("タスクの配信に失敗しました",
			slog.String("task_id", task.ID),
			slog.String("group_key", task.GroupKey),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordTaskDispatchFailure()
		return
	}

	d.metrics.RecordTaskDispatched()
	d.metrics.RecordDispatchLatency(d.clock.Now().Sub(task.FireAt))

	d.logger.Info("タスクを配信しました",
		slog.String("task_id", task.ID),
		slog.String("group_key", task.GroupKey),
	)
}
