// Package handler はHTTP JSON APIとServer-Sent Eventsのハンドラーを提供する。
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/clubhub/internal/metrics"
	"github.com/hitoshi/clubhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 投稿
	PostService     PostServiceInterface
	LiveViewer      LiveViewer
	StreamHeartbeat time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → SecurityHeaders → CORS → Logging → Metrics → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
// 投稿の作成・編集・削除には書き込み用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))

	postHandler := NewPostHandler(deps.PostService)
	streamHandler := NewStreamHandler(deps.LiveViewer, deps.StreamHeartbeat)

	// --- 運用エンドポイント ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 投稿API ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		write := deps.RateLimiter.WriteMiddleware()

		r.Route("/api/{collection}", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.With(write).Post("/", postHandler.CreatePost)

			// GET /api/{collection}/stream - ライブビュー（SSE）
			r.Get("/stream", streamHandler.Stream)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.GetPost)
				r.With(write).Put("/", postHandler.UpdatePost)
				r.With(write).Delete("/", postHandler.DeletePost)
			})
		})
	})

	return r
}
