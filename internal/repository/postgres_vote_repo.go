package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tabiplan/internal/model"
)

// PostgresVoteQuestionRepo はPostgreSQLを使用した投票リポジトリ。
type PostgresVoteQuestionRepo struct {
	db *sql.DB
}

// NewPostgresVoteQuestionRepo はPostgresVoteQuestionRepoを生成する。
func NewPostgresVoteQuestionRepo(db *sql.DB) *PostgresVoteQuestionRepo {
	return &PostgresVoteQuestionRepo{db: db}
}

// FindByID は指定IDの投票を取得する。見つからない場合はnilを返す。
func (r *PostgresVoteQuestionRepo) FindByID(ctx context.Context, id string) (*model.VoteQuestion, error) {
	q := &model.VoteQuestion{}
	var closedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, votable_id, title, question_type, start_date, end_date,
		        is_closed, closed_at, created_at, updated_at
		 FROM vote_questions WHERE id = $1`,
		id,
	).Scan(
		&q.ID, &q.VotableID, &q.Title, &q.Type,
		&q.StartDate, &q.EndDate,
		&q.IsClosed, &closedAt, &q.CreatedAt, &q.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投票の取得に失敗しました: %w", err)
	}

	if closedAt.Valid {
		t := closedAt.Time
		q.ClosedAt = &t
	}

	return q, nil
}

// Close は未クローズの投票をクローズへ遷移させる。
// is_closed = FALSE を条件とする楽観的UPDATEで、
// 並行するクローズ要求の2本目は更新件数0となりノーオペになる。
func (r *PostgresVoteQuestionRepo) Close(ctx context.Context, id string, closedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE vote_questions
		 SET is_closed = TRUE, closed_at = $2, updated_at = now()
		 WHERE id = $1 AND is_closed = FALSE`,
		id, closedAt,
	)
	if err != nil {
		return false, fmt.Errorf("投票のクローズに失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// ListDueForClose は終了日を過ぎた未クローズ投票を取得する。
// end_dateは時刻を持たない日付のため、終了日当日いっぱいは投票可能とし、
// 翌日以降にクローズ対象となる。
func (r *PostgresVoteQuestionRepo) ListDueForClose(ctx context.Context) ([]*model.VoteQuestion, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, votable_id, title, question_type, start_date, end_date,
		        is_closed, closed_at, created_at, updated_at
		 FROM vote_questions
		 WHERE is_closed = FALSE AND end_date < CURRENT_DATE
		 ORDER BY end_date ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("クローズ対象投票の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var questions []*model.VoteQuestion
	for rows.Next() {
		q := &model.VoteQuestion{}
		var closedAt sql.NullTime

		if err := rows.Scan(
			&q.ID, &q.VotableID, &q.Title, &q.Type,
			&q.StartDate, &q.EndDate,
			&q.IsClosed, &closedAt, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("クローズ対象投票の読み取りに失敗しました: %w", err)
		}

		if closedAt.Valid {
			t := closedAt.Time
			q.ClosedAt = &t
		}

		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クローズ対象投票の走査に失敗しました: %w", err)
	}

	return questions, nil
}

// PostgresVoteOptionRepo はPostgreSQLを使用した選択肢リポジトリ。
type PostgresVoteOptionRepo struct {
	db *sql.DB
}

// NewPostgresVoteOptionRepo はPostgresVoteOptionRepoを生成する。
func NewPostgresVoteOptionRepo(db *sql.DB) *PostgresVoteOptionRepo {
	return &PostgresVoteOptionRepo{db: db}
}

// FindByID は指定IDの選択肢を取得する。見つからない場合はnilを返す。
func (r *PostgresVoteOptionRepo) FindByID(ctx context.Context, id string) (*model.VoteOption, error) {
	opt := &model.VoteOption{}
	var extra []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, question_id, title, extra, created_at
		 FROM vote_options WHERE id = $1`,
		id,
	).Scan(&opt.ID, &opt.QuestionID, &opt.Title, &extra, &opt.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("選択肢の取得に失敗しました: %w", err)
	}

	if err := unmarshalExtra(extra, &opt.Extra); err != nil {
		return nil, err
	}

	return opt, nil
}

// ListByQuestionID は投票の選択肢一覧を作成順で返す。
// タイブレークの決定性のため created_at, id で明示的にソートする。
func (r *PostgresVoteOptionRepo) ListByQuestionID(ctx context.Context, questionID string) ([]*model.VoteOption, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, question_id, title, extra, created_at
		 FROM vote_options
		 WHERE question_id = $1
		 ORDER BY created_at ASC, id ASC`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("選択肢一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var options []*model.VoteOption
	for rows.Next() {
		opt := &model.VoteOption{}
		var extra []byte

		if err := rows.Scan(&opt.ID, &opt.QuestionID, &opt.Title, &extra, &opt.CreatedAt); err != nil {
			return nil, fmt.Errorf("選択肢の読み取りに失敗しました: %w", err)
		}

		if err := unmarshalExtra(extra, &opt.Extra); err != nil {
			return nil, err
		}

		options = append(options, opt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("選択肢一覧の走査に失敗しました: %w", err)
	}

	return options, nil
}

// PostgresVoteAnswerRepo はPostgreSQLを使用した回答リポジトリ。
type PostgresVoteAnswerRepo struct {
	db *sql.DB
}

// NewPostgresVoteAnswerRepo はPostgresVoteAnswerRepoを生成する。
func NewPostgresVoteAnswerRepo(db *sql.DB) *PostgresVoteAnswerRepo {
	return &PostgresVoteAnswerRepo{db: db}
}

// ListByQuestionID は投票の回答一覧を返す。
func (r *PostgresVoteAnswerRepo) ListByQuestionID(ctx context.Context, questionID string) ([]*model.VoteAnswer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, question_id, option_id, user_id, created_at, updated_at
		 FROM vote_answers WHERE question_id = $1`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var answers []*model.VoteAnswer
	for rows.Next() {
		a := &model.VoteAnswer{}
		if err := rows.Scan(
			&a.ID, &a.QuestionID, &a.OptionID, &a.UserID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("回答の読み取りに失敗しました: %w", err)
		}
		answers = append(answers, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("回答一覧の走査に失敗しました: %w", err)
	}

	return answers, nil
}

// Upsert は回答を冪等にUPSERTする。
// (question_id, user_id) のUNIQUE制約とON CONFLICT DO UPDATEにより、
// 投票の変更は既存行のoption参照の更新となり、二重集計は発生しない。
func (r *PostgresVoteAnswerRepo) Upsert(ctx context.Context, questionID, optionID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vote_answers (id, question_id, option_id, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 ON CONFLICT (question_id, user_id)
		 DO UPDATE SET option_id = EXCLUDED.option_id, updated_at = now()`,
		uuid.NewString(), questionID, optionID, userID,
	)
	if err != nil {
		return fmt.Errorf("回答のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// unmarshalExtra はJSONBカラムをマップにデコードする。
func unmarshalExtra(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("extraデータのデコードに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface checks
var (
	_ VoteQuestionRepository = (*PostgresVoteQuestionRepo)(nil)
	_ VoteOptionRepository   = (*PostgresVoteOptionRepo)(nil)
	_ VoteAnswerRepository   = (*PostgresVoteAnswerRepo)(nil)
)
