// Package audit は状態遷移成功後の監査ログ記録を提供する。
// モデル変更への暗黙のオブザーバーフックではなく、
// オーケストレーション層（リマインダーサービス・投票リゾルバー）が
// 遷移の成功後に明示的に呼び出す。
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// Recorder は監査ログ記録のインターフェース。
type Recorder interface {
	// Record は監査ログを1件記録する。
	// 記録の失敗は呼び出し元の操作を失敗させない。
	Record(ctx context.Context, actorID, action, targetType, targetID string, detail map[string]any)
}

// Logger はRecorderのリポジトリ実装。
type Logger struct {
	repo   repository.AuditLogRepository
	logger *slog.Logger
}

// NewLogger はLoggerを生成する。
func NewLogger(repo repository.AuditLogRepository, logger *slog.Logger) *Logger {
	return &Logger{repo: repo, logger: logger}
}

// Record は監査ログを1件記録する。
// 監査ログはベストエフォートであり、記録失敗は警告ログに留める。
func (l *Logger) Record(ctx context.Context, actorID, action, targetType, targetID string, detail map[string]any) {
	var raw json.RawMessage
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			l.logger.Warn("監査ログ詳細のエンコードに失敗しました",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
			data = []byte("{}")
		}
		raw = data
	}

	entry := &model.AuditEntry{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     raw,
		CreatedAt:  time.Now(),
	}

	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("監査ログの記録に失敗しました",
			slog.String("action", action),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ Recorder = (*Logger)(nil)
