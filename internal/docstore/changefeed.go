package docstore

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changeChannelPrefix = "docstore:changed:"

// ChangeFeed fans out collection change signals over Redis pub/sub so every
// subscriber, in this process or another, learns that a collection changed
// and can re-run its query. The signal carries no payload; snapshots are
// always rebuilt from the store.
type ChangeFeed struct {
	client redis.UniversalClient
	logger *zap.Logger

	mu       sync.Mutex
	watchers map[string]map[int]chan struct{}
	pubsubs  map[string]*redis.PubSub
	nextID   int
}

// NewChangeFeed builds a feed over the given Redis client.
func NewChangeFeed(client redis.UniversalClient, logger *zap.Logger) *ChangeFeed {
	return &ChangeFeed{
		client:   client,
		logger:   logger,
		watchers: make(map[string]map[int]chan struct{}),
		pubsubs:  make(map[string]*redis.PubSub),
	}
}

// Announce signals that a collection changed. Delivery reaches every
// watcher, including ones registered by the announcing process.
func (f *ChangeFeed) Announce(ctx context.Context, collection string) error {
	return f.client.Publish(ctx, changeChannelPrefix+collection, "").Err()
}

// Watch returns a channel that receives a signal whenever the collection
// changes, plus a stop function releasing the watcher. Signals coalesce: a
// watcher that has not drained its channel receives at most one pending
// signal.
func (f *ChangeFeed) Watch(collection string) (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	ch := make(chan struct{}, 1)
	if f.watchers[collection] == nil {
		f.watchers[collection] = make(map[int]chan struct{})
	}
	f.watchers[collection][id] = ch

	if _, ok := f.pubsubs[collection]; !ok {
		pubsub := f.client.Subscribe(context.Background(), changeChannelPrefix+collection)
		f.pubsubs[collection] = pubsub
		go f.pump(collection, pubsub)
	}

	stop := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.watchers[collection]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(f.watchers, collection)
				if pubsub, ok := f.pubsubs[collection]; ok {
					_ = pubsub.Close()
					delete(f.pubsubs, collection)
				}
			}
		}
	}
	return ch, stop
}

// Close releases every Redis subscription held by the feed.
func (f *ChangeFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for collection, pubsub := range f.pubsubs {
		_ = pubsub.Close()
		delete(f.pubsubs, collection)
	}
	f.watchers = make(map[string]map[int]chan struct{})
}

func (f *ChangeFeed) pump(collection string, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for range ch {
		f.mu.Lock()
		for _, watcher := range f.watchers[collection] {
			select {
			case watcher <- struct{}{}:
			default:
			}
		}
		f.mu.Unlock()
	}
	f.logger.Debug("change feed pump stopped", zap.String("collection", collection))
}
