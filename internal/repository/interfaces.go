// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tabiplan/internal/model"
)

// TripRepository は旅行データの読み取りインターフェース。
// コアは周辺アプリケーションの永続化層を読み取り専用クエリでのみ参照する。
type TripRepository interface {
	// FindByID は指定IDの旅行を取得する。論理削除済みの旅行も返す。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Trip, error)

	// ListParticipants は旅行の参加者一覧を返す。
	ListParticipants(ctx context.Context, tripID string) ([]*model.Participant, error)
}

// TaskRepository は遅延ディスパッチキューのタスク永続化インターフェース。
// 全ての状態変更はタスク単位でアトミックな条件付きUPDATEで行う。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.QueuedTask) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.QueuedTask, error)

	// ListDuePending はfire_at <= now のpendingタスクをfire_at昇順で取得する。
	// FOR UPDATE SKIP LOCKEDで他プロセスと競合しない。
	ListDuePending(ctx context.Context, now time.Time) ([]*model.QueuedTask, error)

	// MarkDispatched はpendingタスクをdispatchedへ遷移させる。
	// 遷移できた場合trueを返す（既にdispatched/cancelledならfalse）。
	MarkDispatched(ctx context.Context, id string) (bool, error)

	// Cancel はpendingタスクをcancelledへ遷移させる。
	// 遷移できた場合trueを返す（既にdispatched/cancelledならfalse）。
	Cancel(ctx context.Context, id string) (bool, error)

	// CancelByGroupKey は指定グループのpendingタスクを全てcancelledへ遷移させ、
	// 取り消した件数を返す。dispatched済みタスクは対象外。
	CancelByGroupKey(ctx context.Context, groupKey string) (int64, error)
}

// VoteQuestionRepository は投票の永続化インターフェース。
type VoteQuestionRepository interface {
	// FindByID は指定IDの投票を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.VoteQuestion, error)

	// Close は未クローズの投票をクローズへ遷移させる。
	// 遷移できた場合trueを返す（既にクローズ済みならfalse）。
	// is_closed = FALSE を条件とする楽観的UPDATEで、二重クローズを防ぐ。
	Close(ctx context.Context, id string, closedAt time.Time) (bool, error)

	// ListDueForClose は終了日を過ぎた未クローズ投票を取得する。
	// FOR UPDATE SKIP LOCKEDで他プロセスと競合しない。
	ListDueForClose(ctx context.Context) ([]*model.VoteQuestion, error)
}

// VoteOptionRepository は選択肢の永続化インターフェース。
type VoteOptionRepository interface {
	// FindByID は指定IDの選択肢を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.VoteOption, error)

	// ListByQuestionID は投票の選択肢一覧を作成順（created_at, id昇順）で返す。
	// タイブレークの決定性のため、順序はDB依存にしない。
	ListByQuestionID(ctx context.Context, questionID string) ([]*model.VoteOption, error)
}

// VoteAnswerRepository は投票回答の永続化インターフェース。
type VoteAnswerRepository interface {
	// ListByQuestionID は投票の回答一覧を返す。
	ListByQuestionID(ctx context.Context, questionID string) ([]*model.VoteAnswer, error)

	// Upsert は回答を冪等にUPSERTする。
	// 同一(question, user)の既存回答がある場合はoption参照を更新し、
	// 2行目を挿入しない（二重集計の防止）。
	Upsert(ctx context.Context, questionID, optionID, userID string) error
}

// CityRepository は実体化された都市レコードの永続化インターフェース。
type CityRepository interface {
	// Create は都市レコードを作成する。
	Create(ctx context.Context, city *model.City) error
}

// EventRepository は実体化されたイベントレコードの永続化インターフェース。
type EventRepository interface {
	// Create はイベントレコードを作成する。
	Create(ctx context.Context, event *model.Event) error
}

// NotificationRepository は通知ストアの永続化インターフェース。
// コアから見た通知シンク。配信はfire-and-forgetで、リトライはしない。
type NotificationRepository interface {
	// Create は通知を作成する。
	Create(ctx context.Context, n *model.Notification) error

	// ListByRecipient は指定ユーザー宛の通知を新しい順に返す。
	ListByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

// AuditLogRepository は監査ログの永続化インターフェース。
type AuditLogRepository interface {
	// Create は監査ログを記録する。
	Create(ctx context.Context, entry *model.AuditEntry) error
}

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	Ping() error
}
