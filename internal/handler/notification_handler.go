package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/tabiplan/internal/model"
)

// defaultNotificationsPerPage は通知一覧の1回の取得件数（デフォルト）。
const defaultNotificationsPerPage = 50

// NotificationListerInterface は通知ハンドラーが必要とするインターフェース。
type NotificationListerInterface interface {
	// ListByRecipient は宛先ユーザーの通知を新しい順に返す。
	ListByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
}

// NotificationHandler は通知閲覧のHTTPハンドラー。
type NotificationHandler struct {
	notifications NotificationListerInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(notifications NotificationListerInterface) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// notificationResponse は通知1件のレスポンス。
type notificationResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// notificationListResponse は通知一覧のレスポンス。
type notificationListResponse struct {
	Notifications []notificationResponse `json:"notifications"`
}

// ListNotifications はユーザー宛の通知一覧を取得する。
// GET /api/notifications?user_id=xxx&limit=50
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "user_idは必須です。",
			Category: "validation",
			Action:   "user_idクエリパラメータを指定してください。",
		})
		return
	}

	limit := defaultNotificationsPerPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	notifications, err := h.notifications.ListByRecipient(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := notificationListResponse{Notifications: make([]notificationResponse, 0, len(notifications))}
	for _, n := range notifications {
		result.Notifications = append(result.Notifications, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Payload:   n.Payload,
			CreatedAt: n.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
