// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/clubhub/internal/model"
)

// 呼び出し側がerrors.Isで判定するための番兵エラー。
// 実際のエラーは "%w: 説明: %w" の形で下位のエラーと一緒にラップされる。
var (
	// ErrStoreUnavailable は読み取り経路でデータストアに到達できなかったことを表す。
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreWrite は書き込み経路で失敗したことを表す。
	ErrStoreWrite = errors.New("store write failed")
	// ErrPostNotFound は更新・削除対象の行が存在しなかったことを表す。
	ErrPostNotFound = errors.New("post not found")
)

// PostRepository は投稿データの永続化インターフェース。
// すべての操作は種別（events / recruitments）ごとのコレクションに対して行う。
type PostRepository interface {
	// FetchAll は指定種別の全投稿をcreated_at降順で返す。
	FetchAll(ctx context.Context, kind model.Kind) ([]model.Post, error)

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, kind model.Kind, id string) (*model.Post, error)

	// Insert は投稿を作成し、ストアが採番したIDとcreated_atをpostに設定する。
	Insert(ctx context.Context, post *model.Post) error

	// Update はIDが一致する投稿の内容を上書きする。id・created_atは変更しない。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの投稿を物理削除する。
	Delete(ctx context.Context, kind model.Kind, id string) error

	// DeleteExpiredBefore はend_dateがcutoffより前の投稿を削除し、削除件数を返す。
	DeleteExpiredBefore(ctx context.Context, kind model.Kind, cutoff civil.Date) (int64, error)
}
