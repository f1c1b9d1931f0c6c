// Package changefeed はPostgreSQLのLISTEN/NOTIFYによる投稿変更通知の購読を提供する。
//
// 通知はペイロードを持たず「種別Xのコレクションが変わった」ことだけを伝える。
// 購読者は通知を受けたら一覧を取得し直す。
package changefeed

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/clubhub/internal/metrics"
	"github.com/hitoshi/clubhub/internal/model"
)

// ErrClosed はクローズ済みのFeedに対して購読しようとした場合のエラー。
var ErrClosed = errors.New("changefeed: feed is closed")

// Listener は変更通知を受信する専用接続のインターフェース。*pq.Listener が満たす。
type Listener interface {
	Listen(channel string) error
	Unlisten(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

var _ Listener = (*pq.Listener)(nil)

// ChannelName は種別に対応する通知チャネル名を返す。
// マイグレーションのトリガーが "<テーブル名>_changes" へ通知する。
func ChannelName(kind model.Kind) string {
	return kind.Collection() + "_changes"
}

// NewPQListener はLISTEN専用のpq.Listenerを生成する。
// 接続状態の変化はロガーに記録する。再接続時にはpq.Listenerがnil通知を送る。
func NewPQListener(databaseURL string, minReconnect, maxReconnect time.Duration, logger *slog.Logger) *pq.Listener {
	return pq.NewListener(databaseURL, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("change listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("change listener disconnected", errAttr(err))
		case pq.ListenerEventReconnected:
			logger.Info("change listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("change listener connection attempt failed", errAttr(err))
		}
	})
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Feed は1本のLISTEN接続を複数の購読者で共有する。
// 種別ごとに購読者数を数え、最初の購読でLISTEN、最後の解除でUNLISTENする。
type Feed struct {
	listener Listener
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	// listenMu はLISTEN/UNLISTENの発行を直列化する。
	// 配信ゴルーチンが取るmuとは分けておき、発行中も配信を止めない。
	listenMu sync.Mutex

	mu     sync.Mutex
	subs   map[model.Kind]map[*Subscription]struct{}
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Option はFeedの設定オプション。
type Option func(*Feed)

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(f *Feed) {
		f.metrics = m
	}
}

// New はFeedを生成し、通知の配信を開始する。
func New(listener Listener, logger *slog.Logger, opts ...Option) *Feed {
	f := &Feed{
		listener: listener,
		logger:   logger,
		metrics:  metrics.NopCollector{},
		subs:     make(map[model.Kind]map[*Subscription]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.wg.Add(1)
	go f.dispatch()
	return f
}

// Subscribe は指定種別の変更通知を購読する。
// onChangeはペイロードなしで呼ばれ、購読者ごとの専用ゴルーチンで実行される。
// 処理中に届いた複数の通知は1回にまとめられる。
func (f *Feed) Subscribe(kind model.Kind, onChange func()) (*Subscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("変更通知の購読に失敗しました: %w", model.NewInvalidKindError(string(kind)))
	}

	f.listenMu.Lock()
	defer f.listenMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	first := len(f.subs[kind]) == 0
	f.mu.Unlock()

	if first {
		if err := f.listener.Listen(ChannelName(kind)); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
			return nil, fmt.Errorf("LISTEN %s に失敗しました: %w", ChannelName(kind), err)
		}
	}

	s := &Subscription{
		feed:     f,
		kind:     kind,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	f.mu.Lock()
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[*Subscription]struct{})
	}
	f.subs[kind][s] = struct{}{}
	n := len(f.subs[kind])
	f.mu.Unlock()

	f.metrics.SetActiveSubscriptions(string(kind), n)

	go s.run()
	return s, nil
}

// Close はすべての購読を終了し、LISTEN接続を解放する。
func (f *Feed) Close() error {
	f.listenMu.Lock()
	defer f.listenMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var all []*Subscription
	for kind, set := range f.subs {
		for s := range set {
			all = append(all, s)
		}
		delete(f.subs, kind)
		f.metrics.SetActiveSubscriptions(string(kind), 0)
	}
	f.mu.Unlock()

	for _, s := range all {
		s.stop()
	}

	close(f.done)
	err := f.listener.Close()
	f.wg.Wait()

	if err != nil {
		return fmt.Errorf("変更通知リスナーのクローズに失敗しました: %w", err)
	}
	return nil
}

// dispatch はLISTEN接続からの通知を購読者へ振り分ける。
func (f *Feed) dispatch() {
	defer f.wg.Done()

	notifications := f.listener.NotificationChannel()
	for {
		select {
		case <-f.done:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n == nil {
				// 再接続: 切断中の通知が失われた可能性があるため全購読者に知らせる
				f.logger.Info("change listener reconnected, signalling all subscribers")
				f.metrics.RecordNotification("all")
				f.signal(model.Kinds()...)
				continue
			}
			kind, ok := kindForChannel(n.Channel)
			if !ok {
				f.logger.Warn("notification on unknown channel", slog.String("channel", n.Channel))
				continue
			}
			f.metrics.RecordNotification(string(kind))
			f.signal(kind)
		}
	}
}

func (f *Feed) signal(kinds ...model.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, kind := range kinds {
		for s := range f.subs[kind] {
			s.notify()
		}
	}
}

// remove は購読を外し、最後の購読者であればUNLISTENする。
func (f *Feed) remove(s *Subscription) {
	f.listenMu.Lock()
	defer f.listenMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	set := f.subs[s.kind]
	if _, ok := set[s]; !ok {
		f.mu.Unlock()
		return
	}
	delete(set, s)
	remaining := len(set)
	if remaining == 0 {
		delete(f.subs, s.kind)
	}
	f.mu.Unlock()

	f.metrics.SetActiveSubscriptions(string(s.kind), remaining)

	if remaining == 0 {
		if err := f.listener.Unlisten(ChannelName(s.kind)); err != nil && !errors.Is(err, pq.ErrChannelNotOpen) {
			f.logger.Warn("failed to unlisten",
				slog.String("channel", ChannelName(s.kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func kindForChannel(channel string) (model.Kind, bool) {
	for _, k := range model.Kinds() {
		if ChannelName(k) == channel {
			return k, true
		}
	}
	return "", false
}

// Subscription は変更通知の購読ハンドル。Closeで解除する。
type Subscription struct {
	feed     *Feed
	kind     model.Kind
	onChange func()

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Kind は購読している種別を返す。
func (s *Subscription) Kind() model.Kind {
	return s.kind
}

// Close は購読を解除する。以後onChangeは呼ばれない。複数回呼んでもよい。
// 実行中のonChangeの完了は待たないため、onChangeの中から呼んでもよい。
func (s *Subscription) Close() {
	if s.stop() {
		s.feed.remove(s)
	}
}

// stop は配信ゴルーチンを止める。初回の呼び出しのみtrueを返す。
func (s *Subscription) stop() bool {
	stopped := false
	s.once.Do(func() {
		close(s.done)
		stopped = true
	})
	return stopped
}

// notify はシグナルを送る。未処理のシグナルがあれば何もしない（合流）。
func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			select {
			case <-s.done:
				return
			default:
			}
			s.onChange()
		}
	}
}
