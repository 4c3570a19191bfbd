package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/tabiplan/internal/audit"
	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/metrics"
	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/queue"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// TaskEnqueuer はリマインダーサービスが依存するキュー書き込み操作。
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, groupKey string, payload any, fireAt time.Time) (string, error)
	CancelGroup(ctx context.Context, groupKey string) (int64, error)
}

// Service は旅行単位のリマインダーのリプラン・取り消しを行う。
// 旅行の日付や参加者の移動手段が変わるたびにReplanTripを呼ぶことで、
// 古いスケジュールを残さず新しいスケジュールへ置き換える。
type Service struct {
	trips   repository.TripRepository
	queue   TaskEnqueuer
	clock   clock.Clock
	audit   audit.Recorder
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(
	trips repository.TripRepository,
	q TaskEnqueuer,
	clk clock.Clock,
	recorder audit.Recorder,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		trips:   trips,
		queue:   q,
		clock:   clk,
		audit:   recorder,
		logger:  logger,
		metrics: collector,
	}
}

// groupKeyForTrip は旅行に紐づくキュータスクのグループキーを返す。
func groupKeyForTrip(tripID string) string {
	return "trip:" + tripID
}

// ReplanTrip は旅行のリマインダーを再計算して置き換える。
// まず既存のpendingタスクを全て取り消し、その後に現在の旅行状態から
// 算出したリマインダーを投入する。取り消しと投入の間に発火境界を
// 跨いだタスクは呼び戻せないが、二重スケジュールは発生しない。
// 削除済み旅行の場合は取り消しのみ行い、新規スケジュールはしない。
func (s *Service) ReplanTrip(ctx context.Context, tripID, actorID string) (int, error) {
	trip, err := s.trips.FindByID(ctx, tripID)
	if err != nil {
		return 0, fmt.Errorf("旅行の取得に失敗しました: %w", err)
	}
	if trip == nil {
		return 0, model.NewTripNotFoundError(tripID)
	}

	groupKey := groupKeyForTrip(tripID)

	cancelled, err := s.queue.CancelGroup(ctx, groupKey)
	if err != nil {
		return 0, fmt.Errorf("既存リマインダーの取り消しに失敗しました: %w", err)
	}

	if trip.IsDeleted() {
		s.logger.Info("削除済み旅行のためリマインダーを取り消しのみ行いました",
			slog.String("trip_id", tripID),
			slog.Int64("cancelled_count", cancelled),
		)
		s.audit.Record(ctx, actorID, "reminder.cancel", "trip", tripID, map[string]any{
			"cancelled_count": cancelled,
		})
		return 0, nil
	}

	participants, err := s.trips.ListParticipants(ctx, tripID)
	if err != nil {
		return 0, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}

	now := s.clock.Now()
	specs, err := Plan(trip, participants, now)
	if err != nil {
		return 0, err
	}

	planned := 0
	for _, spec := range specs {
		if _, err := s.queue.Enqueue(ctx, groupKey, spec.Payload, spec.FireAt); err != nil {
			return planned, fmt.Errorf("リマインダーの投入に失敗しました: %w", err)
		}
		s.metrics.RecordReminderPlanned(string(spec.Kind))
		planned++
	}

	s.logger.Info("旅行のリマインダーをリプランしました",
		slog.String("trip_id", tripID),
		slog.Int64("cancelled_count", cancelled),
		slog.Int("planned_count", planned),
	)
	s.audit.Record(ctx, actorID, "reminder.replan", "trip", tripID, map[string]any{
		"cancelled_count": cancelled,
		"planned_count":   planned,
	})

	return planned, nil
}

// CancelTrip は旅行に紐づくpendingリマインダーを全て取り消す。
// 旅行の削除時に呼ばれる。件数を返す。
func (s *Service) CancelTrip(ctx context.Context, tripID, actorID string) (int64, error) {
	cancelled, err := s.queue.CancelGroup(ctx, groupKeyForTrip(tripID))
	if err != nil {
		return 0, fmt.Errorf("リマインダーの取り消しに失敗しました: %w", err)
	}

	s.logger.Info("旅行のリマインダーを取り消しました",
		slog.String("trip_id", tripID),
		slog.Int64("cancelled_count", cancelled),
	)
	s.audit.Record(ctx, actorID, "reminder.cancel", "trip", tripID, map[string]any{
		"cancelled_count": cancelled,
	})

	return cancelled, nil
}

// compile-time interface check
var _ TaskEnqueuer = (*queue.Queue)(nil)
