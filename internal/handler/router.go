package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tabiplan/internal/middleware"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// ヘルスチェック
	HealthChecker repository.HealthChecker

	// リマインダー
	ReminderService ReminderServiceInterface

	// 投票
	VoteResolver VoteResolverInterface

	// 通知
	NotificationLister NotificationListerInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → CORSMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// ヘルスチェック（/health）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	tripHandler := NewTripHandler(deps.ReminderService)
	voteHandler := NewVoteHandler(deps.VoteResolver)
	notificationHandler := NewNotificationHandler(deps.NotificationLister)

	// ヘルスチェック（レート制限の外）
	r.Get("/health", healthHandler(deps.HealthChecker))

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		// リマインダー管理
		r.Route("/api/trips/{id}/reminders", func(r chi.Router) {
			r.Post("/replan", tripHandler.ReplanReminders)
			r.Post("/cancel", tripHandler.CancelReminders)
		})

		// 投票管理
		r.Route("/api/questions/{id}", func(r chi.Router) {
			r.Post("/close", voteHandler.CloseQuestion)
			r.Post("/answers", voteHandler.CastVote)
			r.Get("/tally", voteHandler.GetTally)
		})

		// 通知閲覧
		r.Get("/api/notifications", notificationHandler.ListNotifications)
	})

	return r
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker repository.HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := checker.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
