package post

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/clubhub/internal/listing"
	"github.com/hitoshi/clubhub/internal/model"
)

// liveView は変更通知のたびに一覧を取得し直し、最新の結果だけを配信する。
//
// 取得は通知ごとに新しく開始され、実行中の取得を待ったり取り消したりはしない。
// 世代番号が進んだ後に完了した古い取得の結果は捨てる。
type liveView struct {
	svc            *Service
	ctx            context.Context
	kind           model.Kind
	filterText     string
	manageUsername string
	onView         func([]model.Post)

	mu  sync.Mutex
	gen uint64
}

// refresh は新しい世代の取得を開始する。
func (v *liveView) refresh() {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	go func() {
		// 通知後は必ずストアから読み直し、結果をキャッシュにも反映する
		posts := v.svc.fetch(v.ctx, v.kind, false)
		view := listing.DeriveView(posts, v.filterText, v.manageUsername, v.svc.Today())

		v.mu.Lock()
		defer v.mu.Unlock()
		if gen != v.gen || v.ctx.Err() != nil {
			return
		}
		v.onView(view)
	}()
}

// Watch は一覧のライブビューを開始する。
// 購読直後に初回のビューを、以後は変更通知のたびに新しいビューをonViewへ渡す。
// onViewは同時に呼ばれることはない。ctxが終了すると購読を解除する。
func (s *Service) Watch(ctx context.Context, kind model.Kind, filterText, manageUsername string, onView func([]model.Post)) error {
	if !kind.Valid() {
		return model.NewInvalidKindError(string(kind))
	}

	v := &liveView{
		svc:            s,
		ctx:            ctx,
		kind:           kind,
		filterText:     filterText,
		manageUsername: manageUsername,
		onView:         onView,
	}

	sub, err := s.feed.Subscribe(kind, v.refresh)
	if err != nil {
		return fmt.Errorf("ライブビューの購読に失敗しました: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	v.refresh()
	return nil
}
