// Package clock は現在時刻の供給を抽象化する。
// スケジューリングロジックを実時間待ちなしでテスト可能にするための分離。
package clock

import "time"

// Clock は現在時刻を供給するインターフェース。
type Clock interface {
	// Now は現在時刻を返す。
	Now() time.Time
}

// SystemClock はウォールクロックをそのまま返すClock実装。
type SystemClock struct{}

// Now は現在時刻を返す。
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock は固定時刻を返すClock実装。テスト用。
type FixedClock struct {
	T time.Time
}

// Now は固定された時刻を返す。
func (c FixedClock) Now() time.Time {
	return c.T
}
