// Package model はドメインモデルを定義する。
package model

import "time"

// Trip は旅行を表す。
// StartDate/EndDateは時刻を持たないカレンダー日付（UTC 00:00で保持する）。
type Trip struct {
	ID        string
	OwnerID   string
	Title     string
	StartDate time.Time
	EndDate   time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDeleted は旅行が論理削除済みかどうかを返す。
// 削除済み旅行のリマインダーは発火してはならない。
func (t *Trip) IsDeleted() bool {
	return t.DeletedAt != nil
}

// TransportMode は参加者の移動手段を表す。
type TransportMode string

const (
	// TransportModeCar は車移動。
	TransportModeCar TransportMode = "car"
	// TransportModePlane は飛行機移動。
	TransportModePlane TransportMode = "plane"
	// TransportModeBus はバス移動。
	TransportModeBus TransportMode = "bus"
	// TransportModeTrain は電車移動。
	TransportModeTrain TransportMode = "train"
	// TransportModeOther はその他の移動手段。
	TransportModeOther TransportMode = "other"
	// TransportModeNone は移動手段未設定。
	TransportModeNone TransportMode = "none"
)

// Participant は旅行の参加者を表す。
// TransportAtが設定されている場合、TransportModeはnone以外でなければならない。
type Participant struct {
	ID            string
	TripID        string
	UserID        string
	TransportMode TransportMode
	TransportAt   *time.Time
	CreatedAt     time.Time
}

// HasTransport は移動手段と出発時刻の両方が設定されているかを返す。
func (p *Participant) HasTransport() bool {
	return p.TransportMode != TransportModeNone && p.TransportMode != "" && p.TransportAt != nil
}
