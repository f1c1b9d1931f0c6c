// Package listing は投稿一覧の表示用ビューを導出する純粋関数を提供する。
package listing

import (
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/clubhub/internal/model"
)

// MaxVisible は一覧に表示する最大件数。
const MaxVisible = 25

// Today は指定タイムゾーンにおける現在の暦日を返す。
func Today(now time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(now.In(loc))
}

// IsExpired は投稿が期限切れかどうかを返す。
// 終了日の当日中は有効で、翌日以降に期限切れとなる。
func IsExpired(post model.Post, today civil.Date) bool {
	return today.After(post.EndDate)
}

// DeriveView は表示する一覧を導出する。入力のスライスは変更しない。
//
//  1. 有効な投稿を期限切れより前に、それぞれcreated_at降順で並べる（安定ソート）
//  2. 先頭MaxVisible件に切り詰める
//  3. manageUsernameが空でなければusernameの部分一致（大文字小文字を区別しない）で絞り込み、
//     filterTextは無視する。そうでなくfilterTextが空でなければclub_nameまたはusernameの部分一致で絞り込む
//
// 切り詰めは絞り込みより前に行うため、絞り込み結果は先頭MaxVisible件の中からのみ選ばれる。
func DeriveView(posts []model.Post, filterText, manageUsername string, today civil.Date) []model.Post {
	ordered := make([]model.Post, len(posts))
	copy(ordered, posts)

	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := IsExpired(ordered[i], today), IsExpired(ordered[j], today)
		if ei != ej {
			return !ei
		}
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	if len(ordered) > MaxVisible {
		ordered = ordered[:MaxVisible]
	}

	var keep func(model.Post) bool
	switch {
	case manageUsername != "":
		needle := strings.ToLower(manageUsername)
		keep = func(p model.Post) bool {
			return strings.Contains(strings.ToLower(p.Username), needle)
		}
	case filterText != "":
		needle := strings.ToLower(filterText)
		keep = func(p model.Post) bool {
			return strings.Contains(strings.ToLower(p.ClubName), needle) ||
				strings.Contains(strings.ToLower(p.Username), needle)
		}
	default:
		return ordered
	}

	view := make([]model.Post, 0, len(ordered))
	for _, p := range ordered {
		if keep(p) {
			view = append(view, p)
		}
	}
	return view
}
