package vote

import (
	"testing"
	"time"

	"github.com/hitoshi/tabiplan/internal/model"
)

func option(id string, createdAt time.Time) *model.VoteOption {
	return &model.VoteOption{ID: id, QuestionID: "q-1", Title: "選択肢" + id, CreatedAt: createdAt}
}

func answersFor(optionIDs ...string) []*model.VoteAnswer {
	answers := make([]*model.VoteAnswer, 0, len(optionIDs))
	for i, id := range optionIDs {
		answers = append(answers, &model.VoteAnswer{
			ID:         "a-" + id,
			QuestionID: "q-1",
			OptionID:   id,
			UserID:     "user-" + string(rune('a'+i)),
		})
	}
	return answers
}

func TestTally_CountDescending(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	options := []*model.VoteOption{
		option("A", base),
		option("B", base.Add(time.Minute)),
	}
	answers := answersFor("B", "B", "A")

	ranking := Tally(options, answers)
	if len(ranking) != 2 {
		t.Fatalf("ranking = %d件, want 2件", len(ranking))
	}
	if ranking[0].Option.ID != "B" || ranking[0].Count != 2 {
		t.Errorf("1位 = %s (%d票), want B (2票)", ranking[0].Option.ID, ranking[0].Count)
	}
	if ranking[1].Option.ID != "A" || ranking[1].Count != 1 {
		t.Errorf("2位 = %s (%d票), want A (1票)", ranking[1].Option.ID, ranking[1].Count)
	}
}

func TestTally_TieBreakByCreationOrder(t *testing.T) {
	// 同数のときは先に作成された選択肢が上位
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	options := []*model.VoteOption{
		option("A", base),
		option("B", base.Add(time.Minute)),
	}
	answers := answersFor("B", "A")

	ranking := Tally(options, answers)
	if ranking[0].Option.ID != "A" {
		t.Errorf("1位 = %s, want A（作成順の先行）", ranking[0].Option.ID)
	}
}

func TestTally_NoAnswers(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	options := []*model.VoteOption{option("A", base)}

	ranking := Tally(options, nil)
	if len(ranking) != 0 {
		t.Errorf("ranking = %d件, want 空", len(ranking))
	}
}

func TestTally_ZeroCountOptionsIncluded(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	options := []*model.VoteOption{
		option("A", base),
		option("B", base.Add(time.Minute)),
	}
	answers := answersFor("A")

	ranking := Tally(options, answers)
	if len(ranking) != 2 {
		t.Fatalf("ranking = %d件, want 2件（得票0も含む）", len(ranking))
	}
	if ranking[1].Option.ID != "B" || ranking[1].Count != 0 {
		t.Errorf("2位 = %s (%d票), want B (0票)", ranking[1].Option.ID, ranking[1].Count)
	}
}

func TestTally_UnknownOptionAnswersIgnored(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	options := []*model.VoteOption{option("A", base)}
	answers := answersFor("A", "ghost")

	ranking := Tally(options, answers)
	if len(ranking) != 1 {
		t.Fatalf("ranking = %d件, want 1件", len(ranking))
	}
	if ranking[0].Count != 1 {
		t.Errorf("count = %d, want 1（存在しない選択肢の回答は数えない）", ranking[0].Count)
	}
}
