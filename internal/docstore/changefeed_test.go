package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestFeed(t *testing.T) *ChangeFeed {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	feed := NewChangeFeed(client, zap.NewNop())
	t.Cleanup(feed.Close)
	return feed
}

func waitSignal(t *testing.T, ch <-chan struct{}, feed *ChangeFeed, collection string) {
	t.Helper()
	// The pub/sub subscription is established asynchronously; keep
	// announcing until the signal lands.
	deadline := time.After(3 * time.Second)
	announce := time.NewTicker(25 * time.Millisecond)
	defer announce.Stop()
	for {
		select {
		case <-ch:
			return
		case <-announce.C:
			if err := feed.Announce(context.Background(), collection); err != nil {
				t.Fatalf("Announce: %v", err)
			}
		case <-deadline:
			t.Fatal("no change signal received")
		}
	}
}

func TestChangeFeedDeliversOwnAnnouncements(t *testing.T) {
	feed := newTestFeed(t)

	ch, stop := feed.Watch("tickets")
	defer stop()

	waitSignal(t, ch, feed, "tickets")
}

func TestChangeFeedScopedByCollection(t *testing.T) {
	feed := newTestFeed(t)

	tickets, stopTickets := feed.Watch("tickets")
	defer stopTickets()
	users, stopUsers := feed.Watch("users")
	defer stopUsers()

	waitSignal(t, tickets, feed, "tickets")

	select {
	case <-users:
		t.Fatal("ticket change leaked into the users watcher")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChangeFeedFanOut(t *testing.T) {
	feed := newTestFeed(t)

	a, stopA := feed.Watch("tickets")
	defer stopA()
	b, stopB := feed.Watch("tickets")
	defer stopB()

	waitSignal(t, a, feed, "tickets")
	waitSignal(t, b, feed, "tickets")
}

func TestChangeFeedCoalescesSignals(t *testing.T) {
	feed := newTestFeed(t)

	ch, stop := feed.Watch("tickets")
	defer stop()

	// Undelivered signals collapse into one pending entry.
	waitSignal(t, ch, feed, "tickets")
	for i := 0; i < 5; i++ {
		if err := feed.Announce(context.Background(), "tickets"); err != nil {
			t.Fatalf("Announce: %v", err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	<-ch
	select {
	case <-ch:
		select {
		case <-ch:
			t.Fatal("more than one signal buffered")
		default:
		}
	default:
	}
}

func TestChangeFeedStopReleasesWatcher(t *testing.T) {
	feed := newTestFeed(t)

	ch, stop := feed.Watch("tickets")
	waitSignal(t, ch, feed, "tickets")
	stop()

	// Drain anything buffered before stop took effect.
	select {
	case <-ch:
	default:
	}

	if err := feed.Announce(context.Background(), "tickets"); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	select {
	case <-ch:
		t.Fatal("stopped watcher still receives signals")
	case <-time.After(150 * time.Millisecond):
	}
}
