package post

import (
	"github.com/hitoshi/clubhub/internal/changefeed"
	"github.com/hitoshi/clubhub/internal/model"
)

// FeedSubscriber はchangefeed.FeedをChangeSubscriberとして使うためのアダプター。
type FeedSubscriber struct {
	Feed *changefeed.Feed
}

var _ ChangeSubscriber = FeedSubscriber{}

// Subscribe は変更通知を購読する。
func (a FeedSubscriber) Subscribe(kind model.Kind, onChange func()) (Subscription, error) {
	sub, err := a.Feed.Subscribe(kind, onChange)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
