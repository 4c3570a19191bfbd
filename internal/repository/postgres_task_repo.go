package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tabiplan/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したキュータスクリポジトリ。
// 状態遷移はすべて status = 'pending' を条件とする条件付きUPDATEで行い、
// pending→dispatched / pending→cancelled 以外の遷移を構造的に不可能にする。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.QueuedTask) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queued_tasks (id, group_key, fire_at, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.GroupKey, task.FireAt, task.Payload, task.Status, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.QueuedTask, error) {
	task := &model.QueuedTask{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, group_key, fire_at, payload, status, created_at
		 FROM queued_tasks WHERE id = $1`,
		id,
	).Scan(&task.ID, &task.GroupKey, &task.FireAt, &task.Payload, &task.Status, &task.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	return task, nil
}

// ListDuePending はfire_at <= now のpendingタスクをfire_at昇順で取得する。
// 過去のfire_atで投入されたタスクも即座に対象となる（投入後のサイレントドロップはしない）。
// FOR UPDATE SKIP LOCKEDで他プロセスと競合しない。
func (r *PostgresTaskRepo) ListDuePending(ctx context.Context, now time.Time) ([]*model.QueuedTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_key, fire_at, payload, status, created_at
		 FROM queued_tasks
		 WHERE status = 'pending' AND fire_at <= $1
		 ORDER BY fire_at ASC
		 FOR UPDATE SKIP LOCKED`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("発火対象タスクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tasks []*model.QueuedTask
	for rows.Next() {
		task := &model.QueuedTask{}
		if err := rows.Scan(
			&task.ID, &task.GroupKey, &task.FireAt, &task.Payload, &task.Status, &task.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("発火対象タスクの読み取りに失敗しました: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("発火対象タスクの走査に失敗しました: %w", err)
	}

	return tasks, nil
}

// MarkDispatched はpendingタスクをdispatchedへ遷移させる。
// 遷移できた場合trueを返す。
func (r *PostgresTaskRepo) MarkDispatched(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE queued_tasks SET status = 'dispatched' WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("タスクのdispatched遷移に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// Cancel はpendingタスクをcancelledへ遷移させる。
// 遷移できた場合trueを返す。dispatched済みタスクは呼び戻せない。
func (r *PostgresTaskRepo) Cancel(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE queued_tasks SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("タスクの取り消しに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// CancelByGroupKey は指定グループのpendingタスクを全てcancelledへ遷移させる。
func (r *PostgresTaskRepo) CancelByGroupKey(ctx context.Context, groupKey string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE queued_tasks SET status = 'cancelled' WHERE group_key = $1 AND status = 'pending'`,
		groupKey,
	)
	if err != nil {
		return 0, fmt.Errorf("グループタスクの取り消しに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
