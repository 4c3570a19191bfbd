// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tabiplan/internal/model"
)

// ReminderServiceInterface はリマインダーハンドラーが必要とするサービスインターフェース。
type ReminderServiceInterface interface {
	// ReplanTrip は旅行のリマインダーを再計算して置き換え、投入件数を返す。
	ReplanTrip(ctx context.Context, tripID, actorID string) (int, error)
	// CancelTrip は旅行のpendingリマインダーを全て取り消し、件数を返す。
	CancelTrip(ctx context.Context, tripID, actorID string) (int64, error)
}

// TripHandler は旅行リマインダー管理のHTTPハンドラー。
type TripHandler struct {
	service ReminderServiceInterface
}

// NewTripHandler はTripHandlerを生成する。
func NewTripHandler(service ReminderServiceInterface) *TripHandler {
	return &TripHandler{service: service}
}

// actorRequest はアクターIDのみのリクエストボディ。
type actorRequest struct {
	ActorID string `json:"actor_id"`
}

// replanResponse はリプラン結果のレスポンス。
type replanResponse struct {
	TripID       string `json:"trip_id"`
	PlannedCount int    `json:"planned_count"`
}

// cancelResponse は取り消し結果のレスポンス。
type cancelResponse struct {
	TripID         string `json:"trip_id"`
	CancelledCount int64  `json:"cancelled_count"`
}

// ReplanReminders は旅行のリマインダーを再計算する。
// POST /api/trips/:id/reminders/replan
func (h *TripHandler) ReplanReminders(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "id")

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

	planned, err := h.service.ReplanTrip(r.Context(), tripID, req.ActorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(replanResponse{
		TripID:       tripID,
		PlannedCount: planned,
	})
}

// CancelReminders は旅行のリマインダーを全て取り消す。
// POST /api/trips/:id/reminders/cancel
func (h *TripHandler) CancelReminders(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "id")

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

	cancelled, err := h.service.CancelTrip(r.Context(), tripID, req.ActorID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cancelResponse{
		TripID:         tripID,
		CancelledCount: cancelled,
	})
}

// --- 共通ヘルパー ---

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"code":     apiErr.Code,
		"message":  apiErr.Message,
		"category": apiErr.Category,
		"action":   apiErr.Action,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスへ変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTripNotFound, model.ErrCodeQuestionNotFound, model.ErrCodeOptionNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidTripDates, model.ErrCodeInvalidTransport:
		return http.StatusUnprocessableEntity
	case model.ErrCodeQuestionClosed:
		return http.StatusConflict
	case model.ErrCodeUnknownVoteType, model.ErrCodeMaterializeFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
