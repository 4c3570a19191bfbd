package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tabiplan/internal/model"
)

// PostgresAuditLogRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditLogRepo struct {
	db *sql.DB
}

// NewPostgresAuditLogRepo はPostgresAuditLogRepoを生成する。
func NewPostgresAuditLogRepo(db *sql.DB) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: db}
}

// Create は監査ログを記録する。
func (r *PostgresAuditLogRepo) Create(ctx context.Context, entry *model.AuditEntry) error {
	detail := entry.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, target_type, target_id, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査ログの記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuditLogRepository = (*PostgresAuditLogRepo)(nil)
