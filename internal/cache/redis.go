package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/clubhub/internal/model"
)

const keyPrefix = "clubhub:posts:"

// setIfVersionScript はバージョンが一致する場合だけ一覧を保存する。
// KEYS[1] = 一覧のキー
// KEYS[2] = バージョンのキー
// ARGV[1] = 取得前に読んだバージョン
// ARGV[2] = JSONエンコードした一覧
// ARGV[3] = TTL（ミリ秒、0以下は無期限）
var setIfVersionScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
    return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
    redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
    redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// invalidateScript はバージョンを進めて一覧を削除する。
// KEYS[1] = 一覧のキー
// KEYS[2] = バージョンのキー
var invalidateScript = redis.NewScript(`
redis.call("INCR", KEYS[2])
redis.call("DEL", KEYS[1])
return 1
`)

// NewRedisClient はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗しました: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}
	return client, nil
}

// RedisCache はRedisを使用したListingCache実装。
// 複数インスタンスでキャッシュとバージョンを共有し、変更通知を受けたインスタンスが破棄する。
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ ListingCache = (*RedisCache)(nil)

// NewRedisCache はRedisCacheを生成する。
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(kind model.Kind) string {
	return keyPrefix + string(kind)
}

func versionKey(kind model.Kind) string {
	return keyPrefix + string(kind) + ":version"
}

// Get はキャッシュ済みの一覧を返す。
func (c *RedisCache) Get(ctx context.Context, kind model.Kind) ([]model.Post, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}

	var posts []model.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, false, fmt.Errorf("キャッシュのデコードに失敗しました: %w", err)
	}
	return posts, true, nil
}

// Version は種別の現在のバージョンを返す。未設定の場合は0。
func (c *RedisCache) Version(ctx context.Context, kind model.Kind) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("キャッシュバージョンの取得に失敗しました: %w", err)
	}
	return v, nil
}

// Set はバージョンが一致する場合に一覧をJSONでTTL付きで保存する。
// バージョンの確認と保存はスクリプトで不可分に行う。
func (c *RedisCache) Set(ctx context.Context, kind model.Kind, version int64, posts []model.Post) (bool, error) {
	if posts == nil {
		posts = []model.Post{}
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return false, fmt.Errorf("キャッシュのエンコードに失敗しました: %w", err)
	}

	stored, err := setIfVersionScript.Run(ctx, c.client,
		[]string{cacheKey(kind), versionKey(kind)},
		strconv.FormatInt(version, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("キャッシュの保存に失敗しました: %w", err)
	}
	return stored == 1, nil
}

// Invalidate は指定種別のバージョンを進め、キャッシュを削除する。
func (c *RedisCache) Invalidate(ctx context.Context, kind model.Kind) error {
	err := invalidateScript.Run(ctx, c.client, []string{cacheKey(kind), versionKey(kind)}).Err()
	if err != nil {
		return fmt.Errorf("キャッシュの破棄に失敗しました: %w", err)
	}
	return nil
}
