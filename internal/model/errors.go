package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, trip, vote, config, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidTripDates  = "INVALID_TRIP_DATES"
	ErrCodeInvalidTransport  = "INVALID_TRANSPORT"
	ErrCodeTripNotFound      = "TRIP_NOT_FOUND"
	ErrCodeQuestionNotFound  = "QUESTION_NOT_FOUND"
	ErrCodeOptionNotFound    = "OPTION_NOT_FOUND"
	ErrCodeQuestionClosed    = "QUESTION_CLOSED"
	ErrCodeUnknownVoteType   = "UNKNOWN_VOTE_TYPE"
	ErrCodeMaterializeFailed = "MATERIALIZE_FAILED"
)

// NewInvalidTripDatesError は旅行日付が不正な場合のエラーを生成する。
// 開始日・終了日の欠落、または終了日が開始日より前の場合に返す。
func NewInvalidTripDatesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTripDates,
		Message:  fmt.Sprintf("旅行の日付が不正です: %s", reason),
		Category: "validation",
		Action:   "開始日と終了日を設定し、終了日が開始日以降であることを確認してください。",
	}
}

// NewInvalidTransportError は移動手段情報が不正な場合のエラーを生成する。
// 出発時刻が設定されているのに移動手段が未設定の場合に返す。
func NewInvalidTransportError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransport,
		Message:  fmt.Sprintf("参加者の移動手段情報が不正です: %s", userID),
		Category: "validation",
		Action:   "出発時刻を設定する場合は移動手段も選択してください。",
	}
}

// NewTripNotFoundError は旅行が見つからない場合のエラーを生成する。
func NewTripNotFoundError(tripID string) *APIError {
	return &APIError{
		Code:     ErrCodeTripNotFound,
		Message:  fmt.Sprintf("指定された旅行が見つかりません: %s", tripID),
		Category: "trip",
		Action:   "旅行IDを確認してください。",
	}
}

// NewQuestionNotFoundError は投票が見つからない場合のエラーを生成する。
func NewQuestionNotFoundError(questionID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuestionNotFound,
		Message:  fmt.Sprintf("指定された投票が見つかりません: %s", questionID),
		Category: "vote",
		Action:   "投票IDを確認してください。",
	}
}

// NewOptionNotFoundError は選択肢が見つからない場合のエラーを生成する。
func NewOptionNotFoundError(optionID string) *APIError {
	return &APIError{
		Code:     ErrCodeOptionNotFound,
		Message:  fmt.Sprintf("指定された選択肢が見つかりません: %s", optionID),
		Category: "vote",
		Action:   "選択肢IDを確認してください。",
	}
}

// NewQuestionClosedError はクローズ済み投票への操作エラーを生成する。
func NewQuestionClosedError(questionID string) *APIError {
	return &APIError{
		Code:     ErrCodeQuestionClosed,
		Message:  fmt.Sprintf("この投票は既に締め切られています: %s", questionID),
		Category: "vote",
		Action:   "締め切り前の投票にのみ投票できます。",
	}
}

// NewUnknownVoteTypeError は未知の投票種別による設定エラーを生成する。
// 投票自体はクローズされるが、勝者の実体化は行われない。
// 運用者によるフォローアップが必要なため、必ず表面化させる。
func NewUnknownVoteTypeError(voteType VoteType) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownVoteType,
		Message:  fmt.Sprintf("未知の投票種別のため勝者を実体化できません: %s", voteType),
		Category: "config",
		Action:   "投票種別に対応するマテリアライザーの設定を確認してください。",
	}
}

// NewMaterializeFailedError は勝者実体化のI/O失敗エラーを生成する。
// クローズ確定後の失敗であり、レコードは作成されていない。
// 運用者によるフォローアップが必要なため、必ず表面化させる。
func NewMaterializeFailedError(questionID string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeMaterializeFailed,
		Message:  fmt.Sprintf("勝者レコードの作成に失敗しました (%s): %v", questionID, cause),
		Category: "system",
		Action:   "監査ログを確認し、必要であれば手動でレコードを作成してください。",
	}
}
