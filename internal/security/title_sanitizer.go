// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TitleSanitizerService はユーザー入力のタイトル（旅行名・選択肢名）を
// サニタイズし、通知ペイロードや実体化レコードへ安全に埋め込めるようにする。
// bluemondayのStrictPolicyにより、全てのHTMLタグと属性を除去した
// プレーンテキストのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizerService はタイトルサニタイズ機能のインターフェースを定義する。
// 通知メッセージの描画前および勝者レコードの実体化前に使用される。
type TitleSanitizerService interface {
	// Sanitize はタイトルから全てのHTMLタグ・属性を除去し、
	// 前後の空白をトリムしたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// titleSanitizer はTitleSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type titleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はTitleSanitizerServiceの新しいインスタンスを生成する。
// タイトルは表示用のプレーンテキストであり、許可するタグは存在しないため
// StrictPolicy（全タグ除去）を使用する。
func NewTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタイトルから全てのHTMLタグ・属性を除去する。
func (s *titleSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
