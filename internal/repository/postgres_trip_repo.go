package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tabiplan/internal/model"
)

// PostgresTripRepo はPostgreSQLを使用した旅行リポジトリ。
type PostgresTripRepo struct {
	db *sql.DB
}

// NewPostgresTripRepo はPostgresTripRepoを生成する。
func NewPostgresTripRepo(db *sql.DB) *PostgresTripRepo {
	return &PostgresTripRepo{db: db}
}

// FindByID は指定IDの旅行を取得する。論理削除済みの旅行も返す。
// 見つからない場合はnilを返す。
func (r *PostgresTripRepo) FindByID(ctx context.Context, id string) (*model.Trip, error) {
	trip := &model.Trip{}
	var deletedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, start_date, end_date, deleted_at, created_at, updated_at
		 FROM trips WHERE id = $1`,
		id,
	).Scan(
		&trip.ID, &trip.OwnerID, &trip.Title,
		&trip.StartDate, &trip.EndDate,
		&deletedAt, &trip.CreatedAt, &trip.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("旅行の取得に失敗しました: %w", err)
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		trip.DeletedAt = &t
	}

	return trip, nil
}

// ListParticipants は旅行の参加者一覧を返す。
func (r *PostgresTripRepo) ListParticipants(ctx context.Context, tripID string) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trip_id, user_id, transport_mode, transport_at, created_at
		 FROM trip_members
		 WHERE trip_id = $1
		 ORDER BY created_at ASC, id ASC`,
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		p := &model.Participant{}
		var transportAt sql.NullTime

		if err := rows.Scan(
			&p.ID, &p.TripID, &p.UserID,
			&p.TransportMode, &transportAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("参加者の読み取りに失敗しました: %w", err)
		}

		if transportAt.Valid {
			t := transportAt.Time
			p.TransportAt = &t
		}

		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加者一覧の走査に失敗しました: %w", err)
	}

	return participants, nil
}

// compile-time interface check
var _ TripRepository = (*PostgresTripRepo)(nil)
