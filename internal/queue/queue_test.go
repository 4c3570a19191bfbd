package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/model"
)

// mockTaskRepo はテスト用のTaskRepositoryモック。
type mockTaskRepo struct {
	created   []*model.QueuedTask
	createErr error

	cancelled      []string
	cancelResult   bool
	groupCancels   []string
	groupCancelled int64
}

func (m *mockTaskRepo) Create(_ context.Context, task *model.QueuedTask) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, task)
	return nil
}

func (m *mockTaskRepo) FindByID(_ context.Context, _ string) (*model.QueuedTask, error) {
	return nil, nil
}

func (m *mockTaskRepo) ListDuePending(_ context.Context, _ time.Time) ([]*model.QueuedTask, error) {
	return nil, nil
}

func (m *mockTaskRepo) MarkDispatched(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (m *mockTaskRepo) Cancel(_ context.Context, id string) (bool, error) {
	m.cancelled = append(m.cancelled, id)
	return m.cancelResult, nil
}

func (m *mockTaskRepo) CancelByGroupKey(_ context.Context, groupKey string) (int64, error) {
	m.groupCancels = append(m.groupCancels, groupKey)
	return m.groupCancelled, nil
}

// mockMetrics はテスト用のMetricsCollectorモック。
type mockMetrics struct {
	enqueued  int
	cancelled int
}

func (m *mockMetrics) RecordReminderPlanned(_ string)        {}
func (m *mockMetrics) RecordTaskEnqueued()                   { m.enqueued++ }
func (m *mockMetrics) RecordTasksCancelled(count int)        { m.cancelled += count }
func (m *mockMetrics) RecordTaskDispatched()                 {}
func (m *mockMetrics) RecordTaskDispatchFailure()            {}
func (m *mockMetrics) RecordDispatchLatency(_ time.Duration) {}
func (m *mockMetrics) RecordVoteClosed(_ string)             {}

func newTestQueue(repo *mockTaskRepo) (*Queue, *mockMetrics) {
	collector := &mockMetrics{}
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return NewQueue(repo, &clock.FixedClock{T: now}, logger, collector), collector
}

func TestEnqueue_CreatesPendingTask(t *testing.T) {
	repo := &mockTaskRepo{}
	q, collector := newTestQueue(repo)

	fireAt := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	payload := map[string]string{"kind": "trip_start"}

	id, err := q.Enqueue(context.Background(), "trip:trip-1", payload, fireAt)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if id == "" {
		t.Error("タスクIDが返らなかった")
	}

	if len(repo.created) != 1 {
		t.Fatalf("created = %d件, want 1件", len(repo.created))
	}
	task := repo.created[0]
	if task.Status != model.TaskStatusPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.GroupKey != "trip:trip-1" {
		t.Errorf("groupKey = %s", task.GroupKey)
	}
	if !task.FireAt.Equal(fireAt) {
		t.Errorf("fireAt = %v, want %v", task.FireAt, fireAt)
	}

	var decoded map[string]string
	if err := json.Unmarshal(task.Payload, &decoded); err != nil {
		t.Fatalf("ペイロードのデコードに失敗: %v", err)
	}
	if decoded["kind"] != "trip_start" {
		t.Errorf("payload = %v", decoded)
	}
	if collector.enqueued != 1 {
		t.Errorf("enqueued metric = %d, want 1", collector.enqueued)
	}
}

func TestEnqueue_PastFireAtAccepted(t *testing.T) {
	// 過去のfire_atでも投入は拒否されない
	repo := &mockTaskRepo{}
	q, _ := newTestQueue(repo)

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := q.Enqueue(context.Background(), "trip:trip-1", map[string]string{}, past); err != nil {
		t.Fatalf("過去のfire_atで投入が失敗した: %v", err)
	}
	if len(repo.created) != 1 {
		t.Errorf("created = %d件, want 1件", len(repo.created))
	}
}

func TestEnqueue_UnencodablePayload(t *testing.T) {
	q, _ := newTestQueue(&mockTaskRepo{})

	_, err := q.Enqueue(context.Background(), "trip:trip-1", func() {}, time.Now())
	if err == nil {
		t.Error("エンコード不能なペイロードでエラーが返らなかった")
	}
}

func TestEnqueue_RepoError(t *testing.T) {
	repo := &mockTaskRepo{createErr: errors.New("db down")}
	q, collector := newTestQueue(repo)

	_, err := q.Enqueue(context.Background(), "trip:trip-1", map[string]string{}, time.Now())
	if err == nil {
		t.Error("リポジトリエラーが返らなかった")
	}
	if collector.enqueued != 0 {
		t.Errorf("失敗時にenqueued metricが記録された")
	}
}

func TestCancel(t *testing.T) {
	repo := &mockTaskRepo{cancelResult: true}
	q, collector := newTestQueue(repo)

	cancelled, err := q.Cancel(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !cancelled {
		t.Error("cancelled = false, want true")
	}
	if collector.cancelled != 1 {
		t.Errorf("cancelled metric = %d, want 1", collector.cancelled)
	}
}

func TestCancel_AlreadyDispatched(t *testing.T) {
	repo := &mockTaskRepo{cancelResult: false}
	q, collector := newTestQueue(repo)

	cancelled, err := q.Cancel(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if cancelled {
		t.Error("dispatched済みタスクの取り消しが成功扱いになった")
	}
	if collector.cancelled != 0 {
		t.Errorf("cancelled metric = %d, want 0", collector.cancelled)
	}
}

func TestCancelGroup(t *testing.T) {
	repo := &mockTaskRepo{groupCancelled: 5}
	q, collector := newTestQueue(repo)

	count, err := q.CancelGroup(context.Background(), "trip:trip-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	if len(repo.groupCancels) != 1 || repo.groupCancels[0] != "trip:trip-1" {
		t.Errorf("groupCancels = %v", repo.groupCancels)
	}
	if collector.cancelled != 5 {
		t.Errorf("cancelled metric = %d, want 5", collector.cancelled)
	}
}
