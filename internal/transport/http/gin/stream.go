package httpgin

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/openmic/internal/repository/redis"
	"github.com/kirinyoku/openmic/internal/service"
)

// ChangeSource delivers event change notifications until ctx is done.
type ChangeSource interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, ev redisrepo.EventChanged)) error
}

// Broker fans one change subscription out to every open stream in this
// process. Slow streams miss messages instead of blocking the rest.
type Broker struct {
	mu   sync.Mutex
	subs map[int64]map[chan redisrepo.EventChanged]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[int64]map[chan redisrepo.EventChanged]struct{}{}}
}

// Run feeds the broker from src until ctx is done.
func (b *Broker) Run(ctx context.Context, src ChangeSource) error {
	err := src.Subscribe(ctx, func(_ context.Context, ev redisrepo.EventChanged) {
		b.Publish(ev)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Broker) Publish(ev redisrepo.EventChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[ev.EventID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Broker) Subscribe(eventID int64) (<-chan redisrepo.EventChanged, func()) {
	ch := make(chan redisrepo.EventChanged, 8)

	b.mu.Lock()
	if b.subs[eventID] == nil {
		b.subs[eventID] = map[chan redisrepo.EventChanged]struct{}{}
	}
	b.subs[eventID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.subs[eventID], ch)
		if len(b.subs[eventID]) == 0 {
			delete(b.subs, eventID)
		}
	}
}

const streamHeartbeat = 15 * time.Second

// @Summary  Stream lineup changes (SSE)
// @Param    id  path  int  true  "Event ID"
// @Produce  text/event-stream
// @Success  200 {object} domain.LineupState "lineup / slots / ping events"
// @Failure  404 {object} ErrorResponse
// @Router   /events/{id}/lineup/stream [get]
func handleLineupStream(svcs *service.Services, broker *Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		if broker == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live updates unavailable"})
			return
		}

		ctx := c.Request.Context()

		state, err := svcs.Lineup.Get(ctx, eventID)
		if err != nil {
			respondErr(c, err)
			return
		}

		changes, unsubscribe := broker.Subscribe(eventID)
		defer unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent("lineup", state)
		c.Writer.Flush()

		tick := time.NewTicker(streamHeartbeat)
		defer tick.Stop()

		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case <-tick.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			case ev := <-changes:
				switch ev.Type {
				case redisrepo.ChangeLineup:
					st, err := svcs.Lineup.Get(ctx, eventID)
					if err != nil {
						return false
					}
					c.SSEvent("lineup", st)
				case redisrepo.ChangeSlots:
					c.SSEvent("slots", ev)
				}
				return true
			}
		})
	}
}
