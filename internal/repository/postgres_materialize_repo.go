package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/tabiplan/internal/model"
)

// PostgresCityRepo はPostgreSQLを使用した都市リポジトリ。
type PostgresCityRepo struct {
	db *sql.DB
}

// NewPostgresCityRepo はPostgresCityRepoを生成する。
func NewPostgresCityRepo(db *sql.DB) *PostgresCityRepo {
	return &PostgresCityRepo{db: db}
}

// Create は都市レコードを作成する。
func (r *PostgresCityRepo) Create(ctx context.Context, city *model.City) error {
	attrs, err := marshalAttrs(city.Attrs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cities (id, container_id, name, attrs, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		city.ID, city.ContainerID, city.Name, attrs, city.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("都市レコードの作成に失敗しました: %w", err)
	}
	return nil
}

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントレコードを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	attrs, err := marshalAttrs(event.Attrs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, container_id, name, attrs, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.ContainerID, event.Name, attrs, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントレコードの作成に失敗しました: %w", err)
	}
	return nil
}

// marshalAttrs は属性マップをJSONBカラム用にエンコードする。
// nilマップは空オブジェクトとして保存する。
func marshalAttrs(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("属性データのエンコードに失敗しました: %w", err)
	}
	return data, nil
}

// compile-time interface checks
var (
	_ CityRepository  = (*PostgresCityRepo)(nil)
	_ EventRepository = (*PostgresEventRepo)(nil)
)
