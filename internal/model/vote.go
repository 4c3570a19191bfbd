package model

import "time"

// VoteType は投票の種別を表す。勝者の実体化先を決定する。
type VoteType string

const (
	// VoteTypeCity は都市を対象とした投票。
	VoteTypeCity VoteType = "city"
	// VoteTypeEvent はイベントを対象とした投票。
	VoteTypeEvent VoteType = "event"
)

// VoteQuestion は期間限定のグループ投票を表す。
// ライフサイクルはオープンで作成され、open→closedへ1回だけ遷移する。
// IsClosedがtrueのとき、かつそのときに限りClosedAtが設定される。
type VoteQuestion struct {
	ID        string
	VotableID string
	Title     string
	Type      VoteType
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoteOption は投票の選択肢を表す。通常フローでは作成後イミュータブル。
// Extraは実体化レコードへマージされる自由形式のキー/値マップ。
type VoteOption struct {
	ID         string
	QuestionID string
	Title      string
	Extra      map[string]any
	CreatedAt  time.Time
}

// VoteAnswer はユーザーの投票を表す。
// (question, user) の組につき最大1件。投票を変更する場合は
// 既存行のoption参照を更新し、2行目を挿入しない。
type VoteAnswer struct {
	ID         string
	QuestionID string
	OptionID   string
	UserID     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// City は投票の勝者から実体化された都市レコードを表す。
type City struct {
	ID          string
	ContainerID string
	Name        string
	Attrs       map[string]any
	CreatedAt   time.Time
}

// Event は投票の勝者から実体化されたイベントレコードを表す。
type Event struct {
	ID          string
	ContainerID string
	Name        string
	Attrs       map[string]any
	CreatedAt   time.Time
}
