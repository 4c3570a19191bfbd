package model

import (
	"encoding/json"
	"time"
)

// TaskStatus はキュータスクの状態を表す。
// 遷移は pending→dispatched または pending→cancelled のみ許可される（単調遷移）。
type TaskStatus string

const (
	// TaskStatusPending は発火待ちの状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusDispatched はハンドラー起動済みの状態。
	// ハンドラーが失敗してもdispatchedのまま残る（配信試行済みとして扱う）。
	TaskStatusDispatched TaskStatus = "dispatched"
	// TaskStatusCancelled は発火前に取り消された状態。
	TaskStatusCancelled TaskStatus = "cancelled"
)

// QueuedTask は遅延ディスパッチキューのタスクを表す。
// キューサブシステムが排他的に所有し、FireAt以降にディスパッチ対象となる。
type QueuedTask struct {
	ID        string
	GroupKey  string
	FireAt    time.Time
	Payload   json.RawMessage
	Status    TaskStatus
	CreatedAt time.Time
}
