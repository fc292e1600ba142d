package remote

import (
	"context"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/codepair/internal/models"
	"github.com/eldtechnologies/codepair/internal/pubsub"
)

// Status is the state of the push connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Conn is the subset of a WebSocket connection the push channel uses.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WebSocketURL derives the push endpoint from an API base URL.
func WebSocketURL(apiURL string) string {
	u := strings.TrimRight(apiURL, "/")
	if strings.HasPrefix(u, "http") {
		u = "ws" + strings.TrimPrefix(u, "http")
	}
	return u + "/ws"
}

// PushChannel receives room updates from the server over one shared
// WebSocket. The connection is dialled on the first Subscribe and is never
// re-dialled on its own: after a drop the status stays disconnected until
// the next Subscribe.
type PushChannel struct {
	url    string
	dialer Dialer
	logger zerolog.Logger

	mu        sync.Mutex
	ctx       context.Context
	quit      chan struct{}
	stopped   bool
	status    Status
	conn      Conn
	nextID    uint64
	handlers  map[string]map[uint64]pubsub.Handler
	listeners map[uint64]func(Status)

	writeMu sync.Mutex
}

// NewPushChannel creates a push channel for the WebSocket endpoint at url.
// A nil dialer uses WebSocketDialer.
func NewPushChannel(url string, dialer Dialer, logger zerolog.Logger) *PushChannel {
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	return &PushChannel{
		url:       url,
		dialer:    dialer,
		logger:    logger.With().Str("component", "push_channel").Logger(),
		ctx:       context.Background(),
		status:    StatusDisconnected,
		handlers:  make(map[string]map[uint64]pubsub.Handler),
		listeners: make(map[uint64]func(Status)),
	}
}

// Start binds the channel to ctx: dials use it and cancelling it stops the
// channel. Calling Start again before Stop has no effect.
func (p *PushChannel) Start(ctx context.Context) {
	p.mu.Lock()
	if p.quit != nil {
		p.mu.Unlock()
		return
	}
	quit := make(chan struct{})
	p.quit = quit
	p.ctx = ctx
	p.stopped = false
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-quit:
		}
	}()
}

// Stop closes the connection. Later subscribes register handlers but do not dial.
func (p *PushChannel) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	conn := p.conn
	p.conn = nil
	changed := p.setStatusLocked(StatusDisconnected)
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if changed {
		p.notify(StatusDisconnected)
	}
}

// Status returns the current connection status.
func (p *PushChannel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// OnStatusChange registers fn for status transitions and calls it right away
// with the current status. The returned function removes it.
func (p *PushChannel) OnStatusChange(fn func(Status)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	current := p.status
	p.mu.Unlock()

	callStatus(fn, current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Subscribe registers fn for updates to roomID, dialling if needed. The
// subscribe message is sent once the connection is open.
func (p *PushChannel) Subscribe(roomID string, fn pubsub.Handler) func() {
	roomID = models.NormalizeRoomID(roomID)

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	first := len(p.handlers[roomID]) == 0
	if first {
		p.handlers[roomID] = make(map[uint64]pubsub.Handler)
	}
	p.handlers[roomID][id] = fn

	var conn Conn
	dial := false
	switch {
	case p.status == StatusConnected:
		if first {
			conn = p.conn
		}
	case p.status == StatusDisconnected && !p.stopped:
		p.setStatusLocked(StatusConnecting)
		dial = true
	}
	ctx := p.ctx
	p.mu.Unlock()

	if dial {
		p.notify(StatusConnecting)
		go p.connect(ctx)
	}
	if conn != nil {
		p.send(conn, models.ActionSubscribe, roomID)
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.unsubscribe(roomID, id) })
	}
}

func (p *PushChannel) unsubscribe(roomID string, id uint64) {
	p.mu.Lock()
	set := p.handlers[roomID]
	delete(set, id)
	var conn Conn
	if len(set) == 0 {
		delete(p.handlers, roomID)
		if p.status == StatusConnected {
			conn = p.conn
		}
	}
	p.mu.Unlock()

	if conn != nil {
		p.send(conn, models.ActionUnsubscribe, roomID)
	}
}

func (p *PushChannel) connect(ctx context.Context) {
	conn, err := p.dialer.Dial(ctx, p.url)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", p.url).Msg("push connection failed")
		p.mu.Lock()
		changed := p.setStatusLocked(StatusDisconnected)
		p.mu.Unlock()
		if changed {
			p.notify(StatusDisconnected)
		}
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.setStatusLocked(StatusConnected)
	rooms := make([]string, 0, len(p.handlers))
	for roomID := range p.handlers {
		rooms = append(rooms, roomID)
	}
	p.mu.Unlock()

	p.logger.Debug().Str("url", p.url).Msg("push connection open")
	p.notify(StatusConnected)

	for _, roomID := range rooms {
		p.send(conn, models.ActionSubscribe, roomID)
	}

	p.readLoop(conn)
}

func (p *PushChannel) readLoop(conn Conn) {
	for {
		var ev models.RoomUpdate
		if err := conn.ReadJSON(&ev); err != nil {
			p.closed(conn, err)
			return
		}
		if ev.Type != models.EventRoomUpdate {
			continue
		}
		p.dispatch(ev)
	}
}

func (p *PushChannel) dispatch(ev models.RoomUpdate) {
	roomID := models.NormalizeRoomID(ev.RoomID)

	p.mu.Lock()
	targets := make([]pubsub.Handler, 0, len(p.handlers[roomID]))
	for _, fn := range p.handlers[roomID] {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	for _, fn := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warn().Interface("panic", r).Str("room_id", roomID).Msg("subscriber panicked")
				}
			}()
			fn(ev.Room)
		}()
	}
}

// closed moves to disconnected if conn is still the active connection.
func (p *PushChannel) closed(conn Conn, err error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	changed := p.setStatusLocked(StatusDisconnected)
	p.mu.Unlock()

	_ = conn.Close()
	p.logger.Debug().Err(err).Msg("push connection closed")
	if changed {
		p.notify(StatusDisconnected)
	}
}

func (p *PushChannel) send(conn Conn, action, roomID string) {
	p.writeMu.Lock()
	err := conn.WriteJSON(models.SubscribeMessage{Action: action, RoomID: roomID})
	p.writeMu.Unlock()
	if err != nil {
		p.logger.Warn().Err(err).Str("action", action).Str("room_id", roomID).Msg("push send failed")
	}
}

// setStatusLocked records s and reports whether it changed. p.mu must be held.
func (p *PushChannel) setStatusLocked(s Status) bool {
	if p.status == s {
		return false
	}
	p.status = s
	return true
}

func (p *PushChannel) notify(s Status) {
	p.mu.Lock()
	listeners := make([]func(Status), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		callStatus(fn, s)
	}
}

func callStatus(fn func(Status), s Status) {
	defer func() { _ = recover() }()
	fn(s)
}
