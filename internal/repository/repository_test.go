package repository

import (
	"testing"
)

// リポジトリ実装が各インターフェースを満たすことを検証する。
// 実際のクエリ動作はデータベース統合テスト（internal/database）で確認する。
func TestPostgresReposImplementInterfaces(t *testing.T) {
	var (
		_ TripRepository         = (*PostgresTripRepo)(nil)
		_ TaskRepository         = (*PostgresTaskRepo)(nil)
		_ VoteQuestionRepository = (*PostgresVoteQuestionRepo)(nil)
		_ VoteOptionRepository   = (*PostgresVoteOptionRepo)(nil)
		_ VoteAnswerRepository   = (*PostgresVoteAnswerRepo)(nil)
		_ CityRepository         = (*PostgresCityRepo)(nil)
		_ EventRepository        = (*PostgresEventRepo)(nil)
		_ NotificationRepository = (*PostgresNotificationRepo)(nil)
		_ AuditLogRepository     = (*PostgresAuditLogRepo)(nil)
	)
}

func TestNewPostgresRepos_AcceptNilDB(t *testing.T) {
	// コンストラクタはDB接続を検証しない（接続確認はPingの責務）
	if NewPostgresTripRepo(nil) == nil {
		t.Error("NewPostgresTripRepo returned nil")
	}
	if NewPostgresTaskRepo(nil) == nil {
		t.Error("NewPostgresTaskRepo returned nil")
	}
	if NewPostgresVoteQuestionRepo(nil) == nil {
		t.Error("NewPostgresVoteQuestionRepo returned nil")
	}
	if NewPostgresNotificationRepo(nil) == nil {
		t.Error("NewPostgresNotificationRepo returned nil")
	}
}
