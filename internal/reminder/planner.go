// Package reminder は旅行リマインダーの算出とスケジューリングを提供する。
// プランナー（純粋関数）とリプランサービスを含む。
package reminder

import (
	"sort"
	"time"

	"github.com/hitoshi/tabiplan/internal/model"
)

const (
	// tripStartLead は旅行開始リマインダーの前倒し日数（開始日の1日前・0時）。
	tripStartLead = 1
	// tripEndLead は帰り支度リマインダーの前倒し日数（終了日の3日前・0時）。
	tripEndLead = 3
	// checkinLead は飛行機チェックインリマインダーの前倒し（出発3日前）。
	checkinLead = 3 * 24 * time.Hour
	// departureLead は出発リマインダーの前倒し（出発2時間前）。
	departureLead = 2 * time.Hour
)

// Plan は旅行と参加者から発火予定のリマインダー一覧を算出する。
// 決定的で副作用を持たない。fire_atがnowより厳密に未来のものだけを含め、
// 過去のものは黙って除外する（未来の作業のみをスケジュールする方針）。
// 戻り値はfire_at昇順（安定ソート）。
//
// ルール:
//  1. 旅行開始: 開始日の1日前0時、全参加者+オーナー宛
//  2. チェックイン: 移動手段がplaneで出発時刻ありの参加者に、出発3日前、本人宛
//  3. 出発: 移動手段と出発時刻の両方がある参加者に（手段問わず）、出発2時間前、本人宛
//  4. 帰り支度: 終了日の3日前0時、全参加者+オーナー宛
//
// 開始日・終了日の欠落、終了日が開始日より前、または出発時刻があるのに
// 移動手段が未設定の参加者が存在する場合はValidationErrorを返し、
// スケジュールは行わない。
func Plan(trip *model.Trip, participants []*model.Participant, now time.Time) ([]model.ReminderSpec, error) {
	if trip.StartDate.IsZero() || trip.EndDate.IsZero() {
		return nil, model.NewInvalidTripDatesError("開始日または終了日が未設定です")
	}
	if trip.EndDate.Before(trip.StartDate) {
		return nil, model.NewInvalidTripDatesError("終了日が開始日より前です")
	}

	for _, p := range participants {
		if p.TransportAt != nil && (p.TransportMode == model.TransportModeNone || p.TransportMode == "") {
			return nil, model.NewInvalidTransportError(p.UserID)
		}
	}

	allRecipients := collectRecipients(trip.OwnerID, participants)

	var specs []model.ReminderSpec

	// ルール1: 旅行開始リマインダー
	tripStartAt := startOfDay(trip.StartDate).AddDate(0, 0, -tripStartLead)
	if tripStartAt.After(now) {
		specs = append(specs, model.ReminderSpec{
			Kind:         model.ReminderKindTripStart,
			TripID:       trip.ID,
			RecipientIDs: allRecipients,
			FireAt:       tripStartAt,
			Payload: model.ReminderPayload{
				Kind:         model.ReminderKindTripStart,
				TripID:       trip.ID,
				TripTitle:    trip.Title,
				RecipientIDs: allRecipients,
			},
		})
	}

	// ルール2・3: 参加者ごとの移動手段リマインダー
	for _, p := range participants {
		if !p.HasTransport() {
			continue
		}

		if p.TransportMode == model.TransportModePlane {
			checkinAt := p.TransportAt.Add(-checkinLead)
			if checkinAt.After(now) {
				specs = append(specs, participantSpec(trip, p, model.ReminderKindCheckinBeforeTransport, checkinAt))
			}
		}

		departureAt := p.TransportAt.Add(-departureLead)
		if departureAt.After(now) {
			specs = append(specs, participantSpec(trip, p, model.ReminderKindTransportDeparture, departureAt))
		}
	}

	// ルール4: 帰り支度リマインダー（移動手段の有無を問わない）
	tripEndAt := startOfDay(trip.EndDate).AddDate(0, 0, -tripEndLead)
	if tripEndAt.After(now) {
		specs = append(specs, model.ReminderSpec{
			Kind:         model.ReminderKindCheckinBeforeEnd,
			TripID:       trip.ID,
			RecipientIDs: allRecipients,
			FireAt:       tripEndAt,
			Payload: model.ReminderPayload{
				Kind:         model.ReminderKindCheckinBeforeEnd,
				TripID:       trip.ID,
				TripTitle:    trip.Title,
				RecipientIDs: allRecipients,
			},
		})
	}

	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].FireAt.Before(specs[j].FireAt)
	})

	return specs, nil
}

// participantSpec は参加者個人宛のReminderSpecを構築する。
func participantSpec(trip *model.Trip, p *model.Participant, kind model.ReminderKind, fireAt time.Time) model.ReminderSpec {
	recipients := []string{p.UserID}
	return model.ReminderSpec{
		Kind:         kind,
		TripID:       trip.ID,
		RecipientIDs: recipients,
		FireAt:       fireAt,
		Payload: model.ReminderPayload{
			Kind:          kind,
			TripID:        trip.ID,
			TripTitle:     trip.Title,
			RecipientIDs:  recipients,
			TransportMode: p.TransportMode,
			DepartureAt:   p.TransportAt,
		},
	}
}

// collectRecipients はオーナーと全参加者のユーザーIDを重複なく集める。
// オーナーが参加者でもある場合に二重配信しない。
func collectRecipients(ownerID string, participants []*model.Participant) []string {
	seen := map[string]bool{ownerID: true}
	recipients := []string{ownerID}

	for _, p := range participants {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			recipients = append(recipients, p.UserID)
		}
	}

	return recipients
}

// startOfDay はカレンダー日付のUTC 0時を返す。
// 旅行の日付は時刻を持たない日付としてUTCで保持している。
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
