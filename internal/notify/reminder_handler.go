// Package notify はディスパッチされたタスクをユーザー向け通知へ変換する。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
	"github.com/hitoshi/tabiplan/internal/security"
)

// ReminderHandler はリマインダータスクのペイロードを通知レコードへ変換し、
// 通知ストアへ書き込むタスクハンドラー。
type ReminderHandler struct {
	notifications repository.NotificationRepository
	sanitizer     security.TitleSanitizerService
	logger        *slog.Logger
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(
	notifications repository.NotificationRepository,
	sanitizer security.TitleSanitizerService,
	logger *slog.Logger,
) *ReminderHandler {
	return &ReminderHandler{
		notifications: notifications,
		sanitizer:     sanitizer,
		logger:        logger,
	}
}

// Handle はディスパッチされたタスクから通知を生成する。
// ペイロードのデコード失敗はリトライしても回復しないため、
// エラーを返してディスパッチ失敗として記録させる。
func (h *ReminderHandler) Handle(ctx context.Context, task *model.QueuedTask) error {
	var payload model.ReminderPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("リマインダーペイロードのデコードに失敗しました: %w", err)
	}

	if len(payload.RecipientIDs) == 0 {
		h.logger.Warn("宛先のないリマインダーをスキップしました",
			slog.String("task_id", task.ID),
		)
		return nil
	}

	message := h.renderMessage(&payload)

	body, err := json.Marshal(map[string]any{
		"kind":    string(payload.Kind),
		"trip_id": payload.TripID,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("通知本文のエンコードに失敗しました: %w", err)
	}

	notification := &model.Notification{
		ID:           uuid.NewString(),
		Type:         "reminder",
		RecipientIDs: payload.RecipientIDs,
		Payload:      body,
		CreatedAt:    time.Now(),
	}

	if err := h.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("通知の書き込みに失敗しました: %w", err)
	}

	h.logger.Info("リマインダー通知を配信しました",
		slog.String("task_id", task.ID),
		slog.String("notification_id", notification.ID),
		slog.String("kind", string(payload.Kind)),
		slog.Int("recipient_count", len(payload.RecipientIDs)),
	)

	return nil
}

// renderMessage はリマインダー種別ごとの通知メッセージを組み立てる。
// 旅行タイトルはユーザー入力のためサニタイズしてから埋め込む。
func (h *ReminderHandler) renderMessage(payload *model.ReminderPayload) string {
	title := h.sanitizer.Sanitize(payload.TripTitle)
	if title == "" {
		title = "旅行"
	}

	switch payload.Kind {
	case model.ReminderKindTripStart:
		return fmt.Sprintf("「%s」は明日出発です。持ち物の最終確認をしましょう。", title)
	case model.ReminderKindCheckinBeforeTransport:
		return fmt.Sprintf("「%s」の飛行機のチェックインが可能になりました。早めのチェックインがおすすめです。", title)
	case model.ReminderKindTransportDeparture:
		return fmt.Sprintf("「%s」の出発まであと2時間です。そろそろ準備を始めましょう。", title)
	case model.ReminderKindCheckinBeforeEnd:
		return fmt.Sprintf("「%s」の終わりが近づいています。帰りの予定を確認しましょう。", title)
	default:
		return fmt.Sprintf("「%s」のリマインダーです。", title)
	}
}
