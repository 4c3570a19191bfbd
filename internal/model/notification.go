package model

import (
	"encoding/json"
	"time"
)

// Notification は配信済み通知を表す。
// クライアントが後からポーリング/取得する前提で、ライブプッシュは行わない。
type Notification struct {
	ID           string
	Type         string
	RecipientIDs []string
	Payload      json.RawMessage
	CreatedAt    time.Time
}

// AuditEntry は状態遷移成功後に明示的に記録される監査ログを表す。
// モデル変更への暗黙フックではなく、オーケストレーション層が呼び出す。
type AuditEntry struct {
	ID         string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Detail     json.RawMessage
	CreatedAt  time.Time
}
