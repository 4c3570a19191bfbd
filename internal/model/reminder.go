package model

import "time"

// ReminderKind はリマインダーの種別を表す。
type ReminderKind string

const (
	// ReminderKindTripStart は旅行開始前日のリマインダー。
	ReminderKindTripStart ReminderKind = "trip_start"
	// ReminderKindCheckinBeforeTransport は飛行機出発3日前のチェックインリマインダー。
	ReminderKindCheckinBeforeTransport ReminderKind = "checkin_before_transport"
	// ReminderKindTransportDeparture は出発2時間前のリマインダー。
	ReminderKindTransportDeparture ReminderKind = "transport_departure"
	// ReminderKindCheckinBeforeEnd は旅行終了3日前の帰り支度リマインダー。
	ReminderKindCheckinBeforeEnd ReminderKind = "checkin_before_end"
)

// ReminderSpec はプランナーが算出する1件のリマインダー予定。
// 永続化されず、ディスパッチキューのタスクペイロードとしてのみ保存される。
type ReminderSpec struct {
	Kind         ReminderKind
	TripID       string
	RecipientIDs []string
	FireAt       time.Time
	Payload      ReminderPayload
}

// ReminderPayload はキューに保存され、通知メッセージの描画に必要な情報を持つ。
type ReminderPayload struct {
	Kind         ReminderKind  `json:"kind"`
	TripID       string        `json:"trip_id"`
	TripTitle    string        `json:"trip_title"`
	RecipientIDs []string      `json:"recipient_ids"`
	TransportMode TransportMode `json:"transport_mode,omitempty"`
	DepartureAt  *time.Time    `json:"departure_at,omitempty"`
}
