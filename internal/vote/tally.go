// Package vote は投票の集計・クローズ・勝者実体化を提供する。
package vote

import (
	"sort"

	"github.com/hitoshi/tabiplan/internal/model"
)

// OptionCount は選択肢と得票数の組。
type OptionCount struct {
	Option *model.VoteOption
	Count  int
}

// Tally は選択肢ごとの得票数を集計し、得票数降順のランキングを返す。
// 同数の場合は選択肢の作成順（ListByQuestionIDの返却順）を維持する。
// 回答が0件の場合は空のランキングを返す。
// 得票0の選択肢も回答が1件以上あればランキングに含める。
// 存在しない選択肢への回答は数えない。
func Tally(options []*model.VoteOption, answers []*model.VoteAnswer) []OptionCount {
	if len(answers) == 0 {
		return nil
	}

	counts := make(map[string]int, len(options))
	known := make(map[string]bool, len(options))
	for _, o := range options {
		known[o.ID] = true
	}
	for _, a := range answers {
		if known[a.OptionID] {
			counts[a.OptionID]++
		}
	}

	ranking := make([]OptionCount, 0, len(options))
	for _, o := range options {
		ranking = append(ranking, OptionCount{Option: o, Count: counts[o.ID]})
	}

	// 安定ソートで同数時の作成順を保つ
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Count > ranking[j].Count
	})

	return ranking
}
