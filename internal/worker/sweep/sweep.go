// Package sweep は投票期限の自動クローズジョブを提供する。
// 終了日を過ぎてもクローズされていない質問を定期バッチで検出し、
// リゾルバーへクローズを委譲する。
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/tabiplan/internal/repository"
	"github.com/hitoshi/tabiplan/internal/vote"
)

// systemActorID は自動クローズの監査ログに記録するアクターID。
const systemActorID = "system"

// QuestionCloser は質問クローズの実行インターフェース。
type QuestionCloser interface {
	// Close は指定質問をクローズし、勝者がいれば実体化する。
	Close(ctx context.Context, questionID, actorID string) (*vote.CloseResult, error)
}

// SweepJob は期限切れ投票の自動クローズジョブ。
// 手動クローズと同じリゾルバーを通すため、クレームの競合制御と
// 冪等性はリゾルバー側の保証をそのまま利用できる。
type SweepJob struct {
	questions repository.VoteQuestionRepository
	resolver  QuestionCloser
	logger    *slog.Logger
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(
	questions repository.VoteQuestionRepository,
	resolver QuestionCloser,
	logger *slog.Logger,
) *SweepJob {
	return &SweepJob{
		questions: questions,
		resolver:  resolver,
		logger:    logger,
	}
}

// Start は指定間隔のティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("投票クローズジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("投票クローズサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("投票クローズジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error("投票クローズサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限切れの未クローズ質問を1回検出してクローズする。
// 個々のクローズ失敗はログに残して続行する。冪等であり、
// 他プロセスが先にクローズした質問はAlreadyClosedとしてスキップされる。
func (j *SweepJob) RunOnce(ctx context.Context) error {
	start := time.Now()

	questions, err := j.questions.ListDueForClose(ctx)
	if err != nil {
		return err
	}

	if len(questions) == 0 {
		return nil
	}

	j.logger.Info("期限切れ投票のクローズを開始します",
		slog.Int("question_count", len(questions)),
	)

	closed := 0
	for _, question := range questions {
		result, err := j.resolver.Close(ctx, question.ID, systemActorID)
		if err != nil {
			j.logger.Error("質問の自動クローズに失敗しました",
				slog.String("question_id", question.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !result.AlreadyClosed {
			closed++
		}
	}

	j.logger.Info("投票クローズサイクルが完了しました",
		slog.Int("question_count", len(questions)),
		slog.Int("closed_count", closed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// compile-time interface check
var _ QuestionCloser = (*vote.Resolver)(nil)
