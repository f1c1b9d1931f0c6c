// Package post は投稿の一覧・作成・編集・削除とライブビューのサービス層を提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/clubhub/internal/cache"
	"github.com/hitoshi/clubhub/internal/editor"
	"github.com/hitoshi/clubhub/internal/listing"
	"github.com/hitoshi/clubhub/internal/metrics"
	"github.com/hitoshi/clubhub/internal/model"
	"github.com/hitoshi/clubhub/internal/repository"
)

// Subscription は変更通知の購読ハンドル。
type Subscription interface {
	Close()
}

// ChangeSubscriber は種別ごとの変更通知を購読するインターフェース。
type ChangeSubscriber interface {
	Subscribe(kind model.Kind, onChange func()) (Subscription, error)
}

// Service は投稿のサービス層。
// 一覧は キャッシュ → リポジトリ → listing.DeriveView の順で導出する。
type Service struct {
	repo    repository.PostRepository
	cache   cache.ListingCache
	editor  *editor.Editor
	feed    ChangeSubscriber
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

// Option はServiceの設定オプション。
type Option func(*Service)

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocation は期限切れ判定に使うタイムゾーンを設定する。
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.loc = loc
	}
}

// WithClock は現在時刻の取得関数を設定する。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.PostRepository,
	listingCache cache.ListingCache,
	ed *editor.Editor,
	feed ChangeSubscriber,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:    repo,
		cache:   listingCache,
		editor:  ed,
		feed:    feed,
		metrics: metrics.NopCollector{},
		logger:  logger,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today は設定されたタイムゾーンにおける今日の日付を返す。
func (s *Service) Today() civil.Date {
	return listing.Today(s.now(), s.loc)
}

// List は表示用の一覧を返す。
// データストアに接続できない場合はログに記録し、エラーではなく空の一覧を返す。
func (s *Service) List(ctx context.Context, kind model.Kind, filterText, manageUsername string) ([]model.Post, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidKindError(string(kind))
	}
	posts := s.fetch(ctx, kind, true)
	return listing.DeriveView(posts, filterText, manageUsername, s.Today()), nil
}

// Get は指定IDの投稿を返す。
func (s *Service) Get(ctx context.Context, kind model.Kind, id string) (*model.Post, error) {
	if !kind.Valid() {
		return nil, model.NewInvalidKindError(string(kind))
	}
	return s.find(ctx, kind, id)
}

// Create はフォームを検証して投稿を作成する。
// form.Kindが空の場合はkindを使う。異なる場合はINVALID_KINDを返す。
func (s *Service) Create(ctx context.Context, kind model.Kind, form model.PostForm) (*model.Post, error) {
	if err := checkFormKind(kind, &form); err != nil {
		return nil, err
	}

	post, err := s.editor.Validate(form)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, post); err != nil {
		s.recordWriteFailure(kind, "create", err)
		return nil, model.NewStoreWriteError()
	}
	s.metrics.RecordWrite(string(kind), "create")
	s.invalidate(ctx, kind)

	s.logger.Info("post created",
		slog.String("kind", string(kind)),
		slog.String("post_id", post.ID),
	)
	return post, nil
}

// Update は既存の投稿をフォームの内容で上書きする。
// actingUsernameが投稿者本人または特別なユーザー名でなければFORBIDDENを返す。
// 種別は変更できない。
func (s *Service) Update(ctx context.Context, kind model.Kind, id, actingUsername string, form model.PostForm) (*model.Post, error) {
	if err := checkFormKind(kind, &form); err != nil {
		return nil, err
	}

	existing, err := s.find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !editor.Authorize(actingUsername, existing) {
		return nil, model.NewForbiddenError()
	}

	post, err := s.editor.Validate(form)
	if err != nil {
		return nil, err
	}
	post.ID = existing.ID
	post.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, post); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, model.NewPostNotFoundError(id)
		}
		s.recordWriteFailure(kind, "update", err)
		return nil, model.NewStoreWriteError()
	}
	s.metrics.RecordWrite(string(kind), "update")
	s.invalidate(ctx, kind)

	s.logger.Info("post updated",
		slog.String("kind", string(kind)),
		slog.String("post_id", post.ID),
	)
	return post, nil
}

// Delete は投稿を物理削除する。権限の判定はUpdateと同じ。
func (s *Service) Delete(ctx context.Context, kind model.Kind, id, actingUsername string) error {
	if !kind.Valid() {
		return model.NewInvalidKindError(string(kind))
	}

	existing, err := s.find(ctx, kind, id)
	if err != nil {
		return err
	}
	if !editor.Authorize(actingUsername, existing) {
		return model.NewForbiddenError()
	}

	if err := s.repo.Delete(ctx, kind, id); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return model.NewPostNotFoundError(id)
		}
		s.recordWriteFailure(kind, "delete", err)
		return model.NewStoreWriteError()
	}
	s.metrics.RecordWrite(string(kind), "delete")
	s.invalidate(ctx, kind)

	s.logger.Info("post deleted",
		slog.String("kind", string(kind)),
		slog.String("post_id", id),
	)
	return nil
}

// StartCacheInvalidation は全種別の変更通知を購読し、通知のたびに一覧キャッシュを破棄する。
// 他のインスタンスによる書き込みをキャッシュに反映するために使う。
// 戻り値の関数で購読を解除する。
func (s *Service) StartCacheInvalidation() (func(), error) {
	var subs []Subscription
	stop := func() {
		for _, sub := range subs {
			sub.Close()
		}
	}

	for _, kind := range model.Kinds() {
		kind := kind
		sub, err := s.feed.Subscribe(kind, func() {
			s.invalidate(context.Background(), kind)
		})
		if err != nil {
			stop()
			return nil, fmt.Errorf("キャッシュ破棄用の変更通知購読に失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	return stop, nil
}

// fetch は種別の全投稿を取得する。useCacheがtrueの場合はキャッシュを先に参照する。
// データストアに接続できない場合は空の一覧を返す。
func (s *Service) fetch(ctx context.Context, kind model.Kind, useCache bool) []model.Post {
	if useCache {
		posts, found, err := s.cache.Get(ctx, kind)
		if err != nil {
			s.logger.Warn("listing cache read failed",
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
		if found {
			return posts
		}
	}

	// 取得中に書き込みで破棄された場合は古い一覧を保存しない
	version, versionErr := s.cache.Version(ctx, kind)
	if versionErr != nil {
		s.logger.Warn("listing cache version read failed",
			slog.String("kind", string(kind)),
			slog.String("error", versionErr.Error()),
		)
	}

	start := s.now()
	posts, err := s.repo.FetchAll(ctx, kind)
	if err != nil {
		// 呼び出し元の切断はストア障害として扱わない
		if ctx.Err() != nil {
			return []model.Post{}
		}
		s.metrics.RecordFetchLatency(s.now().Sub(start))
		s.metrics.RecordFetchFailure(string(kind))
		s.logger.Error("failed to fetch posts, serving empty list",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return []model.Post{}
	}
	s.metrics.RecordFetchLatency(s.now().Sub(start))
	s.metrics.RecordFetchSuccess(string(kind))

	if versionErr != nil {
		return posts
	}
	stored, err := s.cache.Set(ctx, kind, version, posts)
	if err != nil {
		s.logger.Warn("listing cache write failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	} else if !stored {
		s.logger.Debug("listing cache write skipped: invalidated during fetch",
			slog.String("kind", string(kind)),
		)
	}
	return posts
}

func (s *Service) find(ctx context.Context, kind model.Kind, id string) (*model.Post, error) {
	post, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		s.logger.Error("failed to find post",
			slog.String("kind", string(kind)),
			slog.String("post_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreUnavailableError()
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return post, nil
}

func (s *Service) invalidate(ctx context.Context, kind model.Kind) {
	if err := s.cache.Invalidate(ctx, kind); err != nil {
		s.logger.Warn("listing cache invalidation failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) recordWriteFailure(kind model.Kind, op string, err error) {
	s.metrics.RecordWriteFailure(string(kind), op)
	s.logger.Error("failed to write post",
		slog.String("kind", string(kind)),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// checkFormKind はフォームの種別をパスの種別に揃える。
func checkFormKind(kind model.Kind, form *model.PostForm) error {
	if !kind.Valid() {
		return model.NewInvalidKindError(string(kind))
	}
	if form.Kind == "" {
		form.Kind = kind
	}
	if form.Kind != kind {
		return model.NewInvalidKindError(string(form.Kind))
	}
	return nil
}
