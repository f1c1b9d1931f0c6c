// Package cache は投稿一覧（FetchAllの結果）のキャッシュを提供する。
//
// キャッシュするのは種別ごとの生の一覧であり、フィルタ・並び替え済みのビューではない。
// 期限切れ判定が日付に依存するため、ビューは毎回導出し直す。
//
// 種別ごとにバージョンを持ち、Invalidateのたびに進める。
// 取得前に読んだバージョンがSetの時点でも変わっていない場合だけ保存するため、
// 書き込みより前に始まった取得の古い一覧がキャッシュに残ることはない。
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/clubhub/internal/model"
)

// ListingCache は種別ごとの投稿一覧キャッシュのインターフェース。
type ListingCache interface {
	// Get はキャッシュ済みの一覧を返す。キャッシュがない場合はfoundがfalse。
	Get(ctx context.Context, kind model.Kind) (posts []model.Post, found bool, err error)
	// Version は種別の現在のバージョンを返す。ストアから取得する前に読む。
	Version(ctx context.Context, kind model.Kind) (int64, error)
	// Set はバージョンがversionのままであれば一覧をキャッシュする。
	// その間にInvalidateされていた場合は保存せずstoredがfalse。
	Set(ctx context.Context, kind model.Kind, version int64, posts []model.Post) (stored bool, err error)
	// Invalidate は指定種別のキャッシュを破棄し、バージョンを進める。
	Invalidate(ctx context.Context, kind model.Kind) error
}

type memoryEntry struct {
	posts     []model.Post
	expiresAt time.Time
}

// MemoryCache はプロセス内メモリのListingCache実装。REDIS_URL未設定時に使う。
type MemoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	entries  map[model.Kind]memoryEntry
	versions map[model.Kind]int64
	now      func() time.Time
}

var _ ListingCache = (*MemoryCache)(nil)

// NewMemoryCache はMemoryCacheを生成する。
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:      ttl,
		entries:  make(map[model.Kind]memoryEntry),
		versions: make(map[model.Kind]int64),
		now:      time.Now,
	}
}

// Get はキャッシュ済みの一覧のコピーを返す。
func (c *MemoryCache) Get(_ context.Context, kind model.Kind) ([]model.Post, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[kind]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, kind)
		return nil, false, nil
	}
	return append([]model.Post(nil), e.posts...), true, nil
}

// Version は種別の現在のバージョンを返す。
func (c *MemoryCache) Version(_ context.Context, kind model.Kind) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.versions[kind], nil
}

// Set はバージョンが一致する場合に一覧のコピーをTTL付きで保持する。
func (c *MemoryCache) Set(_ context.Context, kind model.Kind, version int64, posts []model.Post) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[kind] != version {
		return false, nil
	}
	c.entries[kind] = memoryEntry{
		posts:     append([]model.Post{}, posts...),
		expiresAt: c.now().Add(c.ttl),
	}
	return true, nil
}

// Invalidate は指定種別のキャッシュを破棄し、バージョンを進める。
func (c *MemoryCache) Invalidate(_ context.Context, kind model.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[kind]++
	delete(c.entries, kind)
	return nil
}
