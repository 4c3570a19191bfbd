package vote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/repository"
	"github.com/hitoshi/tabiplan/internal/security"
)

// WinnerMaterializer は勝者選択肢を旅程上の実体レコードへ変換する。
// 投票タイプごとに実装があり、リゾルバーがタイプで引き当てる。
type WinnerMaterializer interface {
	// Materialize は勝者の内容から実体レコードを作成し、IDを返す。
	Materialize(ctx context.Context, votableID, title string, extra map[string]any) (string, error)
}

// winnerName は実体レコードの名前を決める。
// 選択肢のタイトルを優先し、extra["name"]はタイトルが空のときの
// 後方互換フォールバックとしてのみ使う。
func winnerName(sanitizer security.TitleSanitizerService, title string, extra map[string]any) string {
	name := sanitizer.Sanitize(title)
	if name != "" {
		return name
	}
	if raw, ok := extra["name"].(string); ok {
		return sanitizer.Sanitize(raw)
	}
	return ""
}

// winnerAttrs はextraから実体レコードの属性マップを作る。
// nameは名前決定に使用済みのため属性へは持ち越さない。
func winnerAttrs(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	attrs := make(map[string]any, len(extra))
	for k, v := range extra {
		if k == "name" {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// CityMaterializer はcity投票の勝者を都市レコードとして実体化する。
type CityMaterializer struct {
	cities    repository.CityRepository
	sanitizer security.TitleSanitizerService
}

// NewCityMaterializer はCityMaterializerを生成する。
func NewCityMaterializer(cities repository.CityRepository, sanitizer security.TitleSanitizerService) *CityMaterializer {
	return &CityMaterializer{cities: cities, sanitizer: sanitizer}
}

// Materialize は勝者都市レコードを作成する。
func (m *CityMaterializer) Materialize(ctx context.Context, votableID, title string, extra map[string]any) (string, error) {
	city := &model.City{
		ID:          uuid.NewString(),
		ContainerID: votableID,
		Name:        winnerName(m.sanitizer, title, extra),
		Attrs:       winnerAttrs(extra),
		CreatedAt:   time.Now(),
	}
	if err := m.cities.Create(ctx, city); err != nil {
		return "", fmt.Errorf("都市レコードの作成に失敗しました: %w", err)
	}
	return city.ID, nil
}

// EventMaterializer はevent投票の勝者をイベントレコードとして実体化する。
type EventMaterializer struct {
	events    repository.EventRepository
	sanitizer security.TitleSanitizerService
}

// NewEventMaterializer はEventMaterializerを生成する。
func NewEventMaterializer(events repository.EventRepository, sanitizer security.TitleSanitizerService) *EventMaterializer {
	return &EventMaterializer{events: events, sanitizer: sanitizer}
}

// Materialize は勝者イベントレコードを作成する。
func (m *EventMaterializer) Materialize(ctx context.Context, votableID, title string, extra map[string]any) (string, error) {
	event := &model.Event{
		ID:          uuid.NewString(),
		ContainerID: votableID,
		Name:        winnerName(m.sanitizer, title, extra),
		Attrs:       winnerAttrs(extra),
		CreatedAt:   time.Now(),
	}
	if err := m.events.Create(ctx, event); err != nil {
		return "", fmt.Errorf("イベントレコードの作成に失敗しました: %w", err)
	}
	return event.ID, nil
}

// compile-time interface checks
var (
	_ WinnerMaterializer = (*CityMaterializer)(nil)
	_ WinnerMaterializer = (*EventMaterializer)(nil)
)
