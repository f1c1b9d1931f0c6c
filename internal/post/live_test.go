package post

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/clubhub/internal/model"
)

func receiveView(t *testing.T, views <-chan []model.Post) []model.Post {
	t.Helper()
	select {
	case v := <-views:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
		return nil
	}
}

func expectNoView(t *testing.T, views <-chan []model.Post) {
	t.Helper()
	select {
	case v := <-views:
		t.Fatalf("unexpected view delivered: %+v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatch_InitialViewAndRefreshOnChange(t *testing.T) {
	var mu sync.Mutex
	current := []model.Post{*storedPost("a", "alice")}
	repo := &mockRepo{
		fetchAllFn: func(ctx context.Context, kind model.Kind) ([]model.Post, error) {
			mu.Lock()
			defer mu.Unlock()
			return append([]model.Post(nil), current...), nil
		},
	}
	sub := newMockSubscriber()
	svc, _ := newTestService(repo, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views := make(chan []model.Post, 4)
	if err := svc.Watch(ctx, model.KindRecruitment, "", "", func(v []model.Post) { views <- v }); err != nil {
		t.Fatalf("Watch error: %v", err)
	}

	if v := receiveView(t, views); len(v) != 1 || v[0].ID != "a" {
		t.Fatalf("initial view = %+v", v)
	}

	mu.Lock()
	current = append(current, *storedPost("b", "bob"))
	mu.Unlock()
	sub.fire(model.KindRecruitment)

	if v := receiveView(t, views); len(v) != 2 {
		t.Errorf("refreshed view len = %d, want 2", len(v))
	}
}

func TestWatch_LatestFetchSupersedesInFlight(t *testing.T) {
	secondStarted := make(chan struct{})
	releaseSecond := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	repo := &mockRepo{
		fetchAllFn: func(ctx context.Context, kind model.Kind) ([]model.Post, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()

			switch n {
			case 1:
				return []model.Post{*storedPost("initial", "alice")}, nil
			case 2:
				close(secondStarted)
				<-releaseSecond
				return []model.Post{*storedPost("stale", "alice")}, nil
			default:
				return []model.Post{*storedPost("fresh", "alice")}, nil
			}
		},
	}
	sub := newMockSubscriber()
	svc, _ := newTestService(repo, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views := make(chan []model.Post, 4)
	if err := svc.Watch(ctx, model.KindRecruitment, "", "", func(v []model.Post) { views <- v }); err != nil {
		t.Fatal(err)
	}
	if v := receiveView(t, views); v[0].ID != "initial" {
		t.Fatalf("initial view = %+v", v)
	}

	// 2回目の取得が実行中のまま3回目の取得を開始する
	sub.fire(model.KindRecruitment)
	<-secondStarted
	sub.fire(model.KindRecruitment)

	if v := receiveView(t, views); v[0].ID != "fresh" {
		t.Fatalf("view = %+v, want fresh", v)
	}

	// 古い取得が後から完了しても配信されない
	close(releaseSecond)
	expectNoView(t, views)
}

func TestWatch_ContextEndDisposesSubscription(t *testing.T) {
	repo := &mockRepo{
		fetchAllFn: func(ctx context.Context, kind model.Kind) ([]model.Post, error) {
			return []model.Post{}, nil
		},
	}
	sub := newMockSubscriber()
	svc, _ := newTestService(repo, sub)

	ctx, cancel := context.WithCancel(context.Background())
	views := make(chan []model.Post, 4)
	if err := svc.Watch(ctx, model.KindEvent, "", "", func(v []model.Post) { views <- v }); err != nil {
		t.Fatal(err)
	}
	receiveView(t, views)

	cancel()

	select {
	case <-sub.subs[0].closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not closed after context end")
	}

	// 終了後の通知ではビューを配信しない
	sub.fire(model.KindEvent)
	expectNoView(t, views)
}

func TestWatch_FiltersApplied(t *testing.T) {
	repo := &mockRepo{
		fetchAllFn: func(ctx context.Context, kind model.Kind) ([]model.Post, error) {
			return []model.Post{*storedPost("a", "alice"), *storedPost("b", "bob")}, nil
		},
	}
	svc, _ := newTestService(repo, newMockSubscriber())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	views := make(chan []model.Post, 1)
	if err := svc.Watch(ctx, model.KindRecruitment, "ignored", "BOB", func(v []model.Post) { views <- v }); err != nil {
		t.Fatal(err)
	}
	if v := receiveView(t, views); len(v) != 1 || v[0].ID != "b" {
		t.Errorf("view = %+v, want only bob's post", v)
	}
}

func TestWatch_InvalidKind(t *testing.T) {
	svc, _ := newTestService(&mockRepo{}, newMockSubscriber())
	err := svc.Watch(context.Background(), model.Kind("x"), "", "", func([]model.Post) {})
	if code := errCode(t, err); code != model.ErrCodeInvalidKind {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidKind)
	}
}
