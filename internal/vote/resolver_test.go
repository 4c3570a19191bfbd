package vote

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/model"
)

// --- Resolver テスト用モック ---

// mockQuestionRepo はテスト用のVoteQuestionRepositoryモック。
type mockQuestionRepo struct {
	questions  map[string]*model.VoteQuestion
	closeCalls int
}

func newMockQuestionRepo() *mockQuestionRepo {
	return &mockQuestionRepo{questions: make(map[string]*model.VoteQuestion)}
}

func (m *mockQuestionRepo) FindByID(_ context.Context, id string) (*model.VoteQuestion, error) {
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return q, nil
}

func (m *mockQuestionRepo) Close(_ context.Context, id string, closedAt time.Time) (bool, error) {
	m.closeCalls++
	q, ok := m.questions[id]
	if !ok || q.IsClosed {
		return false, nil
	}
	q.IsClosed = true
	q.ClosedAt = &closedAt
	return true, nil
}

func (m *mockQuestionRepo) ListDueForClose(_ context.Context) ([]*model.VoteQuestion, error) {
	return nil, nil
}

// mockOptionRepo はテスト用のVoteOptionRepositoryモック。
type mockOptionRepo struct {
	options []*model.VoteOption
}

func (m *mockOptionRepo) FindByID(_ context.Context, id string) (*model.VoteOption, error) {
	for _, o := range m.options {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOptionRepo) ListByQuestionID(_ context.Context, questionID string) ([]*model.VoteOption, error) {
	var result []*model.VoteOption
	for _, o := range m.options {
		if o.QuestionID == questionID {
			result = append(result, o)
		}
	}
	return result, nil
}

// mockAnswerRepo はテスト用のVoteAnswerRepositoryモック。
type mockAnswerRepo struct {
	answers []*model.VoteAnswer
	upserts int
}

func (m *mockAnswerRepo) ListByQuestionID(_ context.Context, questionID string) ([]*model.VoteAnswer, error) {
	var result []*model.VoteAnswer
	for _, a := range m.answers {
		if a.QuestionID == questionID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *mockAnswerRepo) Upsert(_ context.Context, questionID, optionID, userID string) error {
	m.upserts++
	for _, a := range m.answers {
		if a.QuestionID == questionID && a.UserID == userID {
			a.OptionID = optionID
			return nil
		}
	}
	m.answers = append(m.answers, &model.VoteAnswer{
		ID:         "a-new",
		QuestionID: questionID,
		OptionID:   optionID,
		UserID:     userID,
	})
	return nil
}

// mockMaterializer はテスト用のWinnerMaterializerモック。
type mockMaterializer struct {
	calls int
	err   error
}

func (m *mockMaterializer) Materialize(_ context.Context, _, _ string, _ map[string]any) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "materialized-1", nil
}

// mockAuditRecorder はテスト用のaudit.Recorderモック。
type mockAuditRecorder struct {
	actions []string
}

func (m *mockAuditRecorder) Record(_ context.Context, _, action, _, _ string, _ map[string]any) {
	m.actions = append(m.actions, action)
}

// mockMetrics はテスト用のMetricsCollectorモック。
type mockMetrics struct {
	closeOutcomes []string
}

func (m *mockMetrics) RecordReminderPlanned(_ string)        {}
func (m *mockMetrics) RecordTaskEnqueued()                   {}
func (m *mockMetrics) RecordTasksCancelled(_ int)            {}
func (m *mockMetrics) RecordTaskDispatched()                 {}
func (m *mockMetrics) RecordTaskDispatchFailure()            {}
func (m *mockMetrics) RecordDispatchLatency(_ time.Duration) {}
func (m *mockMetrics) RecordVoteClosed(outcome string)       { m.closeOutcomes = append(m.closeOutcomes, outcome) }

type resolverFixture struct {
	resolver     *Resolver
	questions    *mockQuestionRepo
	options      *mockOptionRepo
	answers      *mockAnswerRepo
	materializer *mockMaterializer
	audit        *mockAuditRecorder
	metrics      *mockMetrics
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		questions:    newMockQuestionRepo(),
		options:      &mockOptionRepo{},
		answers:      &mockAnswerRepo{},
		materializer: &mockMaterializer{},
		audit:        &mockAuditRecorder{},
		metrics:      &mockMetrics{},
	}
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	f.resolver = NewResolver(
		f.questions,
		f.options,
		f.answers,
		map[model.VoteType]WinnerMaterializer{model.VoteTypeCity: f.materializer},
		&clock.FixedClock{T: time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)},
		f.audit,
		logger,
		f.metrics,
	)
	return f
}

func (f *resolverFixture) withOpenQuestion(voteType model.VoteType) {
	f.questions.questions["q-1"] = &model.VoteQuestion{
		ID:        "q-1",
		VotableID: "trip-1",
		Title:     "行き先投票",
		Type:      voteType,
	}
}

func TestClose_WinnerMaterialized(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base), option("B", base.Add(time.Minute))}
	f.answers.answers = answersFor("A", "A", "B")

	result, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if result.AlreadyClosed {
		t.Error("AlreadyClosed = true, want false")
	}
	if result.WinnerOptionID != "A" {
		t.Errorf("winner = %s, want A", result.WinnerOptionID)
	}
	if result.MaterializedID != "materialized-1" {
		t.Errorf("materializedID = %s, want materialized-1", result.MaterializedID)
	}
	if f.materializer.calls != 1 {
		t.Errorf("materialize calls = %d, want 1", f.materializer.calls)
	}
	if !f.questions.questions["q-1"].IsClosed {
		t.Error("質問がクローズされていない")
	}
	if len(f.metrics.closeOutcomes) != 1 || f.metrics.closeOutcomes[0] != "winner" {
		t.Errorf("outcomes = %v, want [winner]", f.metrics.closeOutcomes)
	}
}

func TestClose_Idempotent(t *testing.T) {
	// 2回クローズしても実体化は1回だけ
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base)}
	f.answers.answers = answersFor("A")

	first, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	if err != nil {
		t.Fatalf("1回目: 予期しないエラー: %v", err)
	}
	second, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	if err != nil {
		t.Fatalf("2回目: 予期しないエラー: %v", err)
	}

	if first.AlreadyClosed {
		t.Error("1回目がAlreadyClosed")
	}
	if !second.AlreadyClosed {
		t.Error("2回目がAlreadyClosedではない")
	}
	if f.materializer.calls != 1 {
		t.Errorf("materialize calls = %d, want 1", f.materializer.calls)
	}
}

func TestClose_NoAnswers(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base)}

	result, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(result.Ranking) != 0 {
		t.Errorf("ranking = %d件, want 空", len(result.Ranking))
	}
	if f.materializer.calls != 0 {
		t.Errorf("回答0件で実体化が%d回呼ばれた", f.materializer.calls)
	}
	if !f.questions.questions["q-1"].IsClosed {
		t.Error("質問がクローズされていない")
	}
	if len(f.metrics.closeOutcomes) != 1 || f.metrics.closeOutcomes[0] != "no_winner" {
		t.Errorf("outcomes = %v, want [no_winner]", f.metrics.closeOutcomes)
	}
}

func TestClose_UnknownVoteType(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteType("hotel"))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base)}
	f.answers.answers = answersFor("A")

	_, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返らなかった: %v", err)
	}
	if apiErr.Code != model.ErrCodeUnknownVoteType {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeUnknownVoteType)
	}

	// エラーでもクローズは確定している
	if !f.questions.questions["q-1"].IsClosed {
		t.Error("未知タイプでも質問はクローズされるべき")
	}
	if f.materializer.calls != 0 {
		t.Errorf("未知タイプで実体化が%d回呼ばれた", f.materializer.calls)
	}
}

func TestClose_MaterializeFailureKeepsClosed(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	f.materializer.err = errors.New("db down")
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base)}
	f.answers.answers = answersFor("A")

	_, err := f.resolver.Close(context.Background(), "q-1", "owner-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返らなかった: %v", err)
	}
	if apiErr.Code != model.ErrCodeMaterializeFailed {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeMaterializeFailed)
	}
	if !f.questions.questions["q-1"].IsClosed {
		t.Error("実体化失敗でも質問はクローズされるべき")
	}
	if len(f.metrics.closeOutcomes) != 1 || f.metrics.closeOutcomes[0] != "materialize_error" {
		t.Errorf("outcomes = %v, want [materialize_error]", f.metrics.closeOutcomes)
	}
}

func TestClose_QuestionNotFound(t *testing.T) {
	f := newResolverFixture()

	_, err := f.resolver.Close(context.Background(), "missing", "owner-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返らなかった: %v", err)
	}
	if apiErr.Code != model.ErrCodeQuestionNotFound {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeQuestionNotFound)
	}
}

func TestCastVote_UpsertsAnswer(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base), option("B", base.Add(time.Minute))}

	if err := f.resolver.CastVote(context.Background(), "q-1", "A", "user-x"); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	// 再投票は上書き
	if err := f.resolver.CastVote(context.Background(), "q-1", "B", "user-x"); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(f.answers.answers) != 1 {
		t.Fatalf("answers = %d件, want 1件（上書き）", len(f.answers.answers))
	}
	if f.answers.answers[0].OptionID != "B" {
		t.Errorf("optionID = %s, want B", f.answers.answers[0].OptionID)
	}
}

func TestCastVote_ClosedQuestionRejected(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	closedAt := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	f.questions.questions["q-1"].IsClosed = true
	f.questions.questions["q-1"].ClosedAt = &closedAt

	err := f.resolver.CastVote(context.Background(), "q-1", "A", "user-x")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返らなかった: %v", err)
	}
	if apiErr.Code != model.ErrCodeQuestionClosed {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeQuestionClosed)
	}
}

func TestCastVote_OptionFromOtherQuestionRejected(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	other := option("X", base)
	other.QuestionID = "q-other"
	f.options.options = []*model.VoteOption{other}

	err := f.resolver.CastVote(context.Background(), "q-1", "X", "user-x")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("APIErrorが返らなかった: %v", err)
	}
	if apiErr.Code != model.ErrCodeOptionNotFound {
		t.Errorf("code = %s, want %s", apiErr.Code, model.ErrCodeOptionNotFound)
	}
}

func TestGetTally(t *testing.T) {
	f := newResolverFixture()
	f.withOpenQuestion(model.VoteTypeCity)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.options.options = []*model.VoteOption{option("A", base), option("B", base.Add(time.Minute))}
	f.answers.answers = answersFor("B", "B")

	question, ranking, err := f.resolver.GetTally(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if question.ID != "q-1" {
		t.Errorf("question.ID = %s, want q-1", question.ID)
	}
	if len(ranking) != 2 || ranking[0].Option.ID != "B" {
		t.Errorf("ranking先頭 = %+v, want B", ranking)
	}
}
