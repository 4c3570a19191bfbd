package vote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tabiplan/internal/audit"
	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/metrics"
	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
)

// CloseResult はクローズ操作の結果。
type CloseResult struct {
	// AlreadyClosed は質問が既にクローズ済みで何も行わなかった場合にtrue。
	AlreadyClosed bool
	// WinnerOptionID は勝者選択肢のID。勝者なしの場合は空。
	WinnerOptionID string
	// MaterializedID は作成された実体レコードのID。勝者なしの場合は空。
	MaterializedID string
	// Ranking は得票数降順の最終ランキング。回答0件の場合は空。
	Ranking []OptionCount
}

// Resolver は投票のクローズと回答受付を行う。
//
// クローズは2段階で直列化する。まずプロセス内のキー付きロックで
// 同一質問の同時クローズを防ぎ、次にリポジトリの条件付きUPDATE
// （is_closed = FALSEのときのみ）でプロセス間のクレーム競合を防ぐ。
// クレームに成功した呼び出しだけが実体化へ進むため、
// 勝者レコードが二重に作られることはない。
type Resolver struct {
	questions     repository.VoteQuestionRepository
	options       repository.VoteOptionRepository
	answers       repository.VoteAnswerRepository
	materializers map[model.VoteType]WinnerMaterializer
	locks         *keyedMutex
	clock         clock.Clock
	audit         audit.Recorder
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
}

// NewResolver はResolverを生成する。
// materializersは投票タイプから実体化実装への対応表。
func NewResolver(
	questions repository.VoteQuestionRepository,
	options repository.VoteOptionRepository,
	answers repository.VoteAnswerRepository,
	materializers map[model.VoteType]WinnerMaterializer,
	clk clock.Clock,
	recorder audit.Recorder,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Resolver {
	return &Resolver{
		questions:     questions,
		options:       options,
		answers:       answers,
		materializers: materializers,
		locks:         newKeyedMutex(),
		clock:         clk,
		audit:         recorder,
		logger:        logger,
		metrics:       collector,
	}
}

// Close は質問をクローズし、勝者がいれば実体化する。
// 冪等であり、クローズ済み質問への呼び出しはAlreadyClosedを返すだけで
// 二度目の実体化は行わない。
//
// 実体化の失敗時も質問はクローズ済みのまま残す。クローズは利用者への
// 「投票は終了した」という約束であり、実体化は後続処理だからである。
// 失敗はエラーとして返し、監査ログとメトリクスに記録する。
func (r *Resolver) Close(ctx context.Context, questionID, actorID string) (*CloseResult, error) {
	unlock := r.locks.Lock(questionID)
	defer unlock()

	question, err := r.questions.FindByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if question == nil {
		return nil, model.NewQuestionNotFoundError(questionID)
	}

	if question.IsClosed {
		r.metrics.RecordVoteClosed("already_closed")
		return &CloseResult{AlreadyClosed: true}, nil
	}

	options, err := r.options.ListByQuestionID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("選択肢の取得に失敗しました: %w", err)
	}
	answers, err := r.answers.ListByQuestionID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("回答の取得に失敗しました: %w", err)
	}

	ranking := Tally(options, answers)

	// クレーム: 条件付きUPDATEでクローズ状態へ遷移する。
	// falseは他プロセスが先にクローズした場合で、実体化へは進まない。
	claimed, err := r.questions.Close(ctx, questionID, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("質問のクローズに失敗しました: %w", err)
	}
	if !claimed {
		r.metrics.RecordVoteClosed("already_closed")
		return &CloseResult{AlreadyClosed: true}, nil
	}

	if len(ranking) == 0 {
		r.logger.Info("回答のない質問を勝者なしでクローズしました",
			slog.String("question_id", questionID),
		)
		r.audit.Record(ctx, actorID, "vote.close", "vote_question", questionID, map[string]any{
			"outcome": "no_winner",
		})
		r.metrics.RecordVoteClosed("no_winner")
		return &CloseResult{Ranking: nil}, nil
	}

	winner := ranking[0]

	materializer, ok := r.materializers[question.Type]
	if !ok {
		// 未知のタイプでもクローズは確定済み。設定不備として記録する。
		r.logger.Error("未知の投票タイプのため実体化できません",
			slog.String("question_id", questionID),
			slog.String("vote_type", string(question.Type)),
		)
		r.audit.Record(ctx, actorID, "vote.close", "vote_question", questionID, map[string]any{
			"outcome":   "config_error",
			"vote_type": string(question.Type),
		})
		r.metrics.RecordVoteClosed("config_error")
		return nil, model.NewUnknownVoteTypeError(question.Type)
	}

	materializedID, err := materializer.Materialize(ctx, question.VotableID, winner.Option.Title, winner.Option.Extra)
	if err != nil {
		r.logger.Error("勝者の実体化に失敗しました",
			slog.String("question_id", questionID),
			slog.String("winner_option_id", winner.Option.ID),
			slog.String("error", err.Error()),
		)
		r.audit.Record(ctx, actorID, "vote.close", "vote_question", questionID, map[string]any{
			"outcome":          "materialize_error",
			"winner_option_id": winner.Option.ID,
			"error":            err.Error(),
		})
		r.metrics.RecordVoteClosed("materialize_error")
		return nil, model.NewMaterializeFailedError(questionID, err)
	}

	r.logger.Info("質問をクローズし勝者を実体化しました",
		slog.String("question_id", questionID),
		slog.String("winner_option_id", winner.Option.ID),
		slog.String("materialized_id", materializedID),
		slog.Int("winner_count", winner.Count),
	)
	r.audit.Record(ctx, actorID, "vote.close", "vote_question", questionID, map[string]any{
		"outcome":          "winner",
		"winner_option_id": winner.Option.ID,
		"materialized_id":  materializedID,
	})
	r.metrics.RecordVoteClosed("winner")

	return &CloseResult{
		WinnerOptionID: winner.Option.ID,
		MaterializedID: materializedID,
		Ranking:        ranking,
	}, nil
}

// CastVote は回答を受け付ける。ユーザーごとに1票で、再投票は上書きとなる。
// クローズ済み質問への回答は拒否する。
func (r *Resolver) CastVote(ctx context.Context, questionID, optionID, userID string) error {
	question, err := r.questions.FindByID(ctx, questionID)
	if err != nil {
		return fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if question == nil {
		return model.NewQuestionNotFoundError(questionID)
	}
	if question.IsClosed {
		return model.NewQuestionClosedError(questionID)
	}

	option, err := r.options.FindByID(ctx, optionID)
	if err != nil {
		return fmt.Errorf("選択肢の取得に失敗しました: %w", err)
	}
	if option == nil || option.QuestionID != questionID {
		return model.NewOptionNotFoundError(optionID)
	}

	if err := r.answers.Upsert(ctx, questionID, optionID, userID); err != nil {
		return fmt.Errorf("回答の保存に失敗しました: %w", err)
	}

	r.audit.Record(ctx, userID, "vote.cast", "vote_question", questionID, map[string]any{
		"option_id": optionID,
	})

	return nil
}

// GetTally は現在の集計結果を返す。クローズ前の途中経過の閲覧にも使う。
func (r *Resolver) GetTally(ctx context.Context, questionID string) (*model.VoteQuestion, []OptionCount, error) {
	question, err := r.questions.FindByID(ctx, questionID)
	if err != nil {
		return nil, nil, fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if question == nil {
		return nil, nil, model.NewQuestionNotFoundError(questionID)
	}

	options, err := r.options.ListByQuestionID(ctx, questionID)
	if err != nil {
		return nil, nil, fmt.Errorf("選択肢の取得に失敗しました: %w", err)
	}
	answers, err := r.answers.ListByQuestionID(ctx, questionID)
	if err != nil {
		return nil, nil, fmt.Errorf("回答の取得に失敗しました: %w", err)
	}

	return question, Tally(options, answers), nil
}
