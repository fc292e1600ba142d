package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/models"
)

// DefaultPollInterval is used when a Poller is created with a non-positive interval.
const DefaultPollInterval = 500 * time.Millisecond

// Fetcher loads the current state of a room. A nil room means it does not exist.
type Fetcher func(ctx context.Context, roomID string) (*models.Room, error)

// Poller extends a Local channel to every process sharing the same storage.
// It re-reads the rooms that have subscribers on each tick and delivers a
// room whenever it differs from the last state seen.
type Poller struct {
	local    *Local
	fetch    Fetcher
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	watched map[string]int
	last    map[string]models.Room
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller wraps local, reading room state through fetch.
func NewPoller(local *Local, fetch Fetcher, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		local:    local,
		fetch:    fetch,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
		ctx:      context.Background(),
		watched:  make(map[string]int),
		last:     make(map[string]models.Room),
	}
}

// Subscribe registers fn for updates to roomID. The first subscriber for a
// room reads its current state so later changes are measured against it.
func (p *Poller) Subscribe(roomID string, fn Handler) func() {
	roomID = models.NormalizeRoomID(roomID)

	p.mu.Lock()
	p.watched[roomID]++
	first := p.watched[roomID] == 1
	ctx := p.ctx
	p.mu.Unlock()

	if first {
		if room, err := p.fetch(ctx, roomID); err == nil && room != nil {
			p.remember(*room)
		}
	}

	off := p.local.Subscribe(roomID, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			off()
			p.mu.Lock()
			p.watched[roomID]--
			if p.watched[roomID] <= 0 {
				delete(p.watched, roomID)
				delete(p.last, roomID)
			}
			p.mu.Unlock()
		})
	}
}

// SubscribeAll registers fn for updates to every room. Only rooms with a
// per-room subscriber are polled.
func (p *Poller) SubscribeAll(fn Handler) func() {
	return p.local.SubscribeAll(fn)
}

// Publish delivers room to local subscribers and records it as seen.
func (p *Poller) Publish(ctx context.Context, room models.Room) error {
	p.remember(room)
	return p.local.Publish(ctx, room)
}

// Start polls until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("poller already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.ctx = ctx
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Stop ends polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		room, err := p.fetch(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Str("room_id", id).Msg("poll failed")
			}
			continue
		}
		if room == nil {
			continue
		}

		p.mu.Lock()
		prev, seen := p.last[id]
		_, watched := p.watched[id]
		if watched {
			p.last[id] = *room
		}
		p.mu.Unlock()

		if watched && (!seen || prev != *room) {
			p.local.Deliver(models.NewRoomUpdate(*room))
		}
	}
}

func (p *Poller) remember(room models.Room) {
	id := models.NormalizeRoomID(room.ID)
	p.mu.Lock()
	if _, ok := p.watched[id]; ok {
		p.last[id] = room
	}
	p.mu.Unlock()
}
