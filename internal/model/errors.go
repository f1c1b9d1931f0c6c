// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, post, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidDate          = "INVALID_DATE"
	ErrCodeInvalidDateRange     = "INVALID_DATE_RANGE"
	ErrCodeInvalidKind          = "INVALID_KIND"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	ErrCodeStoreWrite           = "STORE_WRITE_ERROR"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewMissingRequiredFieldError は必須項目未入力エラーを生成する。
func NewMissingRequiredFieldError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingRequiredField,
		Message:  fmt.Sprintf("必須項目が入力されていません: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "ユーザー名、クラブ名、開始日、終了日、申込リンクをすべて入力してください。",
	}
}

// NewInvalidDateError は日付形式エラーを生成する。
func NewInvalidDateError(field, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("日付の形式が正しくありません: %s=%q", field, value),
		Category: "validation",
		Action:   "日付はYYYY-MM-DD形式で入力してください。",
	}
}

// NewInvalidDateRangeError は終了日が開始日より前の場合のエラーを生成する。
func NewInvalidDateRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  "終了日は開始日以降の日付を指定してください。",
		Category: "validation",
		Action:   "開始日と終了日を確認してください。1日だけの場合は同じ日付を指定できます。",
	}
}

// NewInvalidKindError は未知の投稿種別エラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効な投稿種別です: %s", kind),
		Category: "validation",
		Action:   "種別には event または recruitment を指定してください。投稿後に種別は変更できません。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "post",
		Action:   "一覧を再読み込みしてください。投稿は既に削除されている可能性があります。",
	}
}

// NewForbiddenError は編集・削除権限がない場合のエラーを生成する。
// ユーザー名の一致のみで判定しており、認証ではない。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この投稿を編集・削除する権限がありません。",
		Category: "post",
		Action:   "投稿時に入力したユーザー名を指定してください。",
	}
}

// NewStoreUnavailableError はデータストアの読み取り失敗エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "store",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStoreWriteError はデータストアへの書き込み失敗エラーを生成する。
// 自動リトライは行わない。
func NewStoreWriteError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreWrite,
		Message:  "投稿の保存に失敗しました。",
		Category: "store",
		Action:   "入力内容はそのままで、しばらく待ってから再度保存してください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
