// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は投稿の自由入力テキスト（クラブ名、イベント名）から
// HTMLタグを除去し、プレーンテキストとして保存できる形にする。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Clean はすべてのHTMLタグを除去したプレーンテキストを返す。
	// scriptやstyleの中身も除去される。エンティティは元の文字に戻す。
	// 同一入力に対して常に同一出力を返す。
	Clean(s string) string
}

// textSanitizer はbluemondayのStrictPolicyを使うTextSanitizer実装。
// Policyはスレッドセーフに使える。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はHTMLタグを除去する。
// bluemondayは出力をHTMLエスケープするため、保存用にアンエスケープして戻す。
// 画面表示時のエスケープは表示側の責務とする。
func (s *textSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(in))
}
