package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/model"
)

// mockTaskRepo はテスト用のTaskRepositoryモック。
type mockTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.QueuedTask
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*model.QueuedTask)}
}

func (m *mockTaskRepo) add(task *model.QueuedTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

func (m *mockTaskRepo) Create(_ context.Context, task *model.QueuedTask) error {
	m.add(task)
	return nil
}

func (m *mockTaskRepo) FindByID(_ context.Context, id string) (*model.QueuedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[id], nil
}

func (m *mockTaskRepo) ListDuePending(_ context.Context, now time.Time) ([]*model.QueuedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*model.QueuedTask
	for _, t := range m.tasks {
		if t.Status == model.TaskStatusPending && !t.FireAt.After(now) {
			due = append(due, t)
		}
	}
	return due, nil
}

func (m *mockTaskRepo) MarkDispatched(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskStatusPending {
		return false, nil
	}
	t.Status = model.TaskStatusDispatched
	return true, nil
}

func (m *mockTaskRepo) Cancel(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskStatusPending {
		return false, nil
	}
	t.Status = model.TaskStatusCancelled
	return true, nil
}

func (m *mockTaskRepo) CancelByGroupKey(_ context.Context, groupKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, t := range m.tasks {
		if t.GroupKey == groupKey && t.Status == model.TaskStatusPending {
			t.Status = model.TaskStatusCancelled
			count++
		}
	}
	return count, nil
}

// mockHandler はテスト用のTaskHandlerモック。
type mockHandler struct {
	mu      sync.Mutex
	handled []string
	errFor  map[string]error

	active    int32
	maxActive int32
}

func newMockHandler() *mockHandler {
	return &mockHandler{errFor: make(map[string]error)}
}

func (h *mockHandler) Handle(_ context.Context, task *model.QueuedTask) error {
	current := atomic.AddInt32(&h.active, 1)
	for {
		max := atomic.LoadInt32(&h.maxActive)
		if current <= max || atomic.CompareAndSwapInt32(&h.maxActive, max, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&h.active, -1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, task.ID)
	return h.errFor[task.ID]
}

// mockMetrics はテスト用のMetricsCollectorモック。
type mockMetrics struct {
	mu         sync.Mutex
	dispatched int
	failed     int
}

func (m *mockMetrics) RecordReminderPlanned(_ string)        {}
func (m *mockMetrics) RecordTaskEnqueued()                   {}
func (m *mockMetrics) RecordTasksCancelled(_ int)            {}
func (m *mockMetrics) RecordTaskDispatched()                 { m.mu.Lock(); m.dispatched++; m.mu.Unlock() }
func (m *mockMetrics) RecordTaskDispatchFailure()            { m.mu.Lock(); m.failed++; m.mu.Unlock() }
func (m *mockMetrics) RecordDispatchLatency(_ time.Duration) {}
func (m *mockMetrics) RecordVoteClosed(_ string)             {}

func pendingTask(id string, fireAt time.Time) *model.QueuedTask {
	return &model.QueuedTask{
		ID:      id,
		FireAt:  fireAt,
		Payload: []byte("{}"),
		Status:  model.TaskStatusPending,
	}
}

func newTestDispatcher(repo *mockTaskRepo, handler TaskHandler, now time.Time, maxConcurrency int) (*Dispatcher, *mockMetrics) {
	collector := &mockMetrics{}
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	d := NewDispatcher(repo, handler, &clock.FixedClock{T: now}, logger, collector, maxConcurrency)
	return d, collector
}

func TestRunOnce_DispatchesDueTasks(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockTaskRepo()
	repo.add(pendingTask("due-1", now.Add(-time.Hour)))
	repo.add(pendingTask("due-2", now.Add(-time.Minute)))
	repo.add(pendingTask("future", now.Add(time.Hour)))

	handler := newMockHandler()
	d, collector := newTestDispatcher(repo, handler, now, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(handler.handled) != 2 {
		t.Errorf("handled = %v, want 2件", handler.handled)
	}
	if repo.tasks["future"].Status != model.TaskStatusPending {
		t.Error("未来のタスクがディスパッチされた")
	}
	if repo.tasks["due-1"].Status != model.TaskStatusDispatched {
		t.Errorf("status = %s, want dispatched", repo.tasks["due-1"].Status)
	}
	if collector.dispatched != 2 {
		t.Errorf("dispatched metric = %d, want 2", collector.dispatched)
	}
}

func TestRunOnce_PastFireAtEligible(t *testing.T) {
	// fire_atが大きく過去でも投入済みなら発火対象になる
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockTaskRepo()
	repo.add(pendingTask("old", now.Add(-30*24*time.Hour)))

	handler := newMockHandler()
	d, _ := newTestDispatcher(repo, handler, now, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(handler.handled) != 1 {
		t.Errorf("handled = %v, want [old]", handler.handled)
	}
}

func TestRunOnce_CancelledTaskNotDispatched(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockTaskRepo()
	task := pendingTask("cancelled", now.Add(-time.Hour))
	task.Status = model.TaskStatusCancelled
	repo.add(task)

	handler := newMockHandler()
	d, _ := newTestDispatcher(repo, handler, now, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if len(handler.handled) != 0 {
		t.Errorf("取り消し済みタスクが配信された: %v", handler.handled)
	}
}

func TestRunOnce_HandlerErrorDoesNotStopOthers(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockTaskRepo()
	repo.add(pendingTask("fail", now.Add(-time.Hour)))
	repo.add(pendingTask("ok", now.Add(-time.Hour)))

	handler := newMockHandler()
	handler.errFor["fail"] = errors.New("配信先エラー")
	d, collector := newTestDispatcher(repo, handler, now, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(handler.handled) != 2 {
		t.Errorf("handled = %v, want 2件", handler.handled)
	}
	// 失敗タスクもdispatchedのまま（キュー側リトライなし）
	if repo.tasks["fail"].Status != model.TaskStatusDispatched {
		t.Errorf("status = %s, want dispatched", repo.tasks["fail"].Status)
	}
	if collector.failed != 1 {
		t.Errorf("failed metric = %d, want 1", collector.failed)
	}
	if collector.dispatched != 1 {
		t.Errorf("dispatched metric = %d, want 1", collector.dispatched)
	}
}

func TestRunOnce_ConcurrencyLimit(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := newMockTaskRepo()
	for i := 0; i < 10; i++ {
		repo.add(pendingTask(string(rune('a'+i)), now.Add(-time.Hour)))
	}

	handler := newMockHandler()
	d, _ := newTestDispatcher(repo, handler, now, 2)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if max := atomic.LoadInt32(&handler.maxActive); max > 2 {
		t.Errorf("最大並列数 = %d, want 2以下", max)
	}
	if len(handler.handled) != 10 {
		t.Errorf("handled = %d件, want 10件", len(handler.handled))
	}
}

func TestRunOnce_NoDueTasks(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	d, _ := newTestDispatcher(newMockTaskRepo(), newMockHandler(), now, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
}
