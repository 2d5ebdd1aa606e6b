package httpgin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
)

type chanSource chan redisrepo.EventChanged

func (s chanSource) Subscribe(ctx context.Context, handler func(ctx context.Context, ev redisrepo.EventChanged)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s:
			handler(ctx, ev)
		}
	}
}

func TestBrokerRoutesByEvent(t *testing.T) {
	b := NewBroker()

	one, unsubOne := b.Subscribe(1)
	two, unsubTwo := b.Subscribe(2)
	defer unsubTwo()

	b.Publish(redisrepo.EventChanged{Type: redisrepo.ChangeLineup, EventID: 1})

	select {
	case ev := <-one:
		assert.Equal(t, redisrepo.ChangeLineup, ev.Type)
	default:
		t.Fatal("no message for event 1")
	}

	select {
	case <-two:
		t.Fatal("event 2 got event 1's message")
	default:
	}

	unsubOne()
	b.Publish(redisrepo.EventChanged{Type: redisrepo.ChangeSlots, EventID: 1})
	assert.Empty(t, one)
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe(5)
	defer unsub()

	for i := 0; i < 20; i++ {
		b.Publish(redisrepo.EventChanged{Type: redisrepo.ChangeSlots, EventID: 5})
	}

	assert.Len(t, ch, cap(ch))
}

func TestBrokerRun(t *testing.T) {
	b := NewBroker()
	src := make(chanSource)
	ch, unsub := b.Subscribe(3)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, src) }()

	src <- redisrepo.EventChanged{Type: redisrepo.ChangeLineup, EventID: 3}

	select {
	case ev := <-ch:
		assert.Equal(t, int64(3), ev.EventID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}
