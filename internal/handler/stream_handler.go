package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	"github.com/hitoshi/clubhub/internal/model"
)

// LiveViewer は一覧のライブビューを提供するインターフェース。
type LiveViewer interface {
	// Watch はctxが終了するまで、変更のたびに導出した一覧をonViewへ渡す。
	Watch(ctx context.Context, kind model.Kind, filterText, manageUsername string, onView func([]model.Post)) error
	// Today は期限切れ判定に使う今日の日付を返す。
	Today() civil.Date
}

// DefaultStreamHeartbeat はハートビートコメントの送信間隔のデフォルト値。
const DefaultStreamHeartbeat = 25 * time.Second

// StreamHandler は一覧の変更をServer-Sent Eventsで配信するHTTPハンドラー。
type StreamHandler struct {
	viewer    LiveViewer
	heartbeat time.Duration
}

// NewStreamHandler はStreamHandlerを生成する。heartbeatが0以下の場合はデフォルト値を使う。
func NewStreamHandler(viewer LiveViewer, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultStreamHeartbeat
	}
	return &StreamHandler{viewer: viewer, heartbeat: heartbeat}
}

// Stream は一覧のライブビューを配信する。
// 接続直後に現在の一覧を、以後は変更のたびに新しい一覧をpostsイベントとして送る。
// クライアントが切断すると購読を解除する。
// GET /api/{collection}/stream?filter=&manage=
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// 配信が追いつかない場合は最新のビューだけを残す
	views := make(chan []model.Post, 1)
	q := r.URL.Query()
	err := h.viewer.Watch(ctx, kind, q.Get("filter"), q.Get("manage"), func(posts []model.Post) {
		select {
		case <-views:
		default:
		}
		views <- posts
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutをこの接続に限り解除する
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline for stream", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("streaming not supported", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
		case posts := <-views:
			data, err := json.Marshal(toPostResponses(posts, h.viewer.Today()))
			if err != nil {
				slog.Error("failed to encode posts event", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: posts\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
