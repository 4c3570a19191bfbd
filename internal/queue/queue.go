// Package queue は永続化された時刻順ディスパッチキューの投入・取り消しを提供する。
// タスクは (payload, fire_at) の組として受け付けられ、fire_at以降に
// ディスパッチャー（internal/worker/dispatch）の発火対象となる。
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/metrics"
	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// Queue は遅延ディスパッチキューの書き込み側。
// タスクストアはコア唯一の共有可変リソースであり、
// 全ての変更はタスク単位でアトミックな操作を通して行う。
type Queue struct {
	tasks   repository.TaskRepository
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewQueue はQueueを生成する。
func NewQueue(
	tasks repository.TaskRepository,
	clk clock.Clock,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Queue {
	return &Queue{
		tasks:   tasks,
		clock:   clk,
		logger:  logger,
		metrics: collector,
	}
}

// Enqueue はペイロードをfire_at付きでキューへ投入し、タスクIDを返す。
// fire_atが過去であっても投入は受け付けられ、次のディスパッチサイクルで
// 即座に発火対象となる（投入後のサイレントドロップはしない）。
func (q *Queue) Enqueue(ctx context.Context, groupKey string, payload any, fireAt time.Time) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}

	task := &model.QueuedTask{
		ID:        uuid.NewString(),
		GroupKey:  groupKey,
		FireAt:    fireAt,
		Payload:   data,
		Status:    model.TaskStatusPending,
		CreatedAt: q.clock.Now(),
	}

	if err := q.tasks.Create(ctx, task); err != nil {
		return "", fmt.Errorf("タスクの投入に失敗しました: %w", err)
	}

	q.metrics.RecordTaskEnqueued()
	q.logger.Info("タスクをキューへ投入しました",
		slog.String("task_id", task.ID),
		slog.String("group_key", groupKey),
		slog.Time("fire_at", fireAt),
	)

	return task.ID, nil
}

// Cancel はpendingタスクを取り消す。
// 取り消せた場合trueを返す。dispatched済みタスクは呼び戻せない。
func (q *Queue) Cancel(ctx context.Context, taskID string) (bool, error) {
	cancelled, err := q.tasks.Cancel(ctx, taskID)
	if err != nil {
		return false, err
	}

	if cancelled {
		q.metrics.RecordTasksCancelled(1)
		q.logger.Info("タスクを取り消しました", slog.String("task_id", taskID))
	}

	return cancelled, nil
}

// CancelGroup は指定グループのpendingタスクを全て取り消し、件数を返す。
// dispatched済みタスクは対象外であり、削除済み旅行宛の通知が
// 届く可能性は残る（許容される制限として文書化済み）。
func (q *Queue) CancelGroup(ctx context.Context, groupKey string) (int64, error) {
	count, err := q.tasks.CancelByGroupKey(ctx, groupKey)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		q.metrics.RecordTasksCancelled(int(count))
		q.logger.Info("グループのタスクを取り消しました",
			slog.String("group_key", groupKey),
			slog.Int64("cancelled_count", count),
		)
	}

	return count, nil
}
