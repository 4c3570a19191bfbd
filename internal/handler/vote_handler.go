package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/vote"
)

// VoteResolverInterface は投票ハンドラーが必要とするリゾルバーインターフェース。
type VoteResolverInterface interface {
	// Close は質問をクローズし、勝者がいれば実体化する。冪等。
	Close(ctx context.Context, questionID, actorID string) (*vote.CloseResult, error)
	// CastVote は回答を受け付ける。再投票は上書き。
	CastVote(ctx context.Context, questionID, optionID, userID string) error
	// GetTally は現在の集計結果を返す。
	GetTally(ctx context.Context, questionID string) (*model.VoteQuestion, []vote.OptionCount, error)
}

// VoteHandler は投票管理のHTTPハンドラー。
type VoteHandler struct {
	resolver VoteResolverInterface
}

// NewVoteHandler はVoteHandlerを生成する。
func NewVoteHandler(resolver VoteResolverInterface) *VoteHandler {
	return &VoteHandler{resolver: resolver}
}

// --- リクエスト・レスポンス型 ---

// castVoteRequest は回答リクエストのボディ。
type castVoteRequest struct {
	OptionID string `json:"option_id"`
	UserID   string `json:"user_id"`
}

// optionCountResponse は選択肢ごとの得票のレスポンス。
type optionCountResponse struct {
	OptionID string `json:"option_id"`
	Title    string `json:"title"`
	Count    int    `json:"count"`
}

// closeResponse はクローズ結果のレスポンス。
type closeResponse struct {
	QuestionID     string                `json:"question_id"`
	AlreadyClosed  bool                  `json:"already_closed"`
	WinnerOptionID string                `json:"winner_option_id,omitempty"`
	MaterializedID string                `json:"materialized_id,omitempty"`
	Ranking        []optionCountResponse `json:"ranking"`
}

// tallyResponse は集計結果のレスポンス。
type tallyResponse struct {
	QuestionID string                `json:"question_id"`
	Title      string                `json:"title"`
	IsClosed   bool                  `json:"is_closed"`
	ClosedAt   *time.Time            `json:"closed_at,omitempty"`
	Ranking    []optionCountResponse `json:"ranking"`
}

func rankingResponse(ranking []vote.OptionCount) []optionCountResponse {
	result := make([]optionCountResponse, 0, len(ranking))
	for _, oc := range ranking {
		result = append(result, optionCountResponse{
			OptionID: oc.Option.ID,
			Title:    oc.Option.Title,
			Count:    oc.Count,
		})
	}
	return result
}

// CloseQuestion は質問をクローズする。
// POST /api/questions/:id/close
func (h *VoteHandler) CloseQuestion(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")

	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエストの内容を確認してください。",
		})
		return
	}

	result, err := h.resolver.Close(r.Context(), questionID, req.ActorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(closeResponse{
		QuestionID:     questionID,
		AlreadyClosed:  result.AlreadyClosed,
		WinnerOptionID: result.WinnerOptionID,
		MaterializedID: result.MaterializedID,
		Ranking:        rankingResponse(result.Ranking),
	})
}

// CastVote は回答を受け付ける。
// POST /api/questions/:id/answers
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionID == "" || req.UserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "option_idとuser_idは必須です。",
			Category: "validation",
			Action:   "リクエストの内容を確認してください。",
		})
		return
	}

	if err := h.resolver.CastVote(r.Context(), questionID, req.OptionID, req.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTally は現在の集計結果を返す。
// GET /api/questions/:id/tally
func (h *VoteHandler) GetTally(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "id")

	question, ranking, err := h.resolver.GetTally(r.Context(), questionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tallyResponse{
		QuestionID: question.ID,
		Title:      question.Title,
		IsClosed:   question.IsClosed,
		ClosedAt:   question.ClosedAt,
		Ranking:    rankingResponse(ranking),
	})
}
