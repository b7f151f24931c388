// Package live streams race positions to websocket clients.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// ErrNoSession is returned when no live race session matches a room.
var ErrNoSession = errors.New("live: no race session found")

// PositionFeed is the live timing source.
type PositionFeed interface {
	RaceSessions(ctx context.Context, season int) ([]upstream.LiveSession, error)
	Positions(ctx context.Context, sessionKey int) ([]upstream.Position, error)
}

// EventSource resolves a round to its scheduled event.
type EventSource interface {
	Event(ctx context.Context, season, round int) (upstream.Event, error)
}

// Message is the frame pushed to clients.
type Message struct {
	Type string              `json:"type"`
	Data []upstream.Position `json:"data"`
}

// Config tunes the per-connection loop.
type Config struct {
	PollInterval   time.Duration
	ReceiveTimeout time.Duration
	AllowedOrigins []string
}

// Gateway serves the live feed. Every connection polls on its own cadence;
// the registry tracks membership and shares the session lookup per room.
type Gateway struct {
	registry *Registry
	feed     PositionFeed
	events   EventSource
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewGateway creates a gateway. events may be nil, in which case the first
// race session of the season is used.
func NewGateway(registry *Registry, feed PositionFeed, events EventSource, cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 8 * time.Second
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 100 * time.Millisecond
	}
	g := &Gateway{
		registry: registry,
		feed:     feed,
		events:   events,
		cfg:      cfg,
		logger:   logger.With().Str("component", "live_gateway").Logger(),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// Registry returns the room registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Serve upgrades the request and streams positions for season/round until the
// client goes away.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, season, round int) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	roomName := Room(season, round)
	sub := g.registry.Subscribe(roomName, r.RemoteAddr)
	log := g.logger.With().Str("room", roomName).Str("subscriber", sub.ID).Logger()
	log.Info().Msg("client connected")

	defer func() {
		if err := g.registry.Unsubscribe(sub); err != nil {
			log.Warn().Err(err).Msg("unsubscribe failed")
		}
		log.Info().Msg("client disconnected")
	}()

	// Request cancellation does not reach hijacked connections, so the
	// reader goroutine is the only disconnect signal.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	g.loop(ctx, conn, sub, season, round, closed, log)
}

func (g *Gateway) loop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, season, round int, closed <-chan error, log zerolog.Logger) {
	for {
		if err := g.pollOnce(ctx, conn, sub.Room, season, round, log); err != nil {
			log.Debug().Err(err).Msg("write failed, closing")
			return
		}

		if !g.wait(closed, g.cfg.PollInterval, log) {
			return
		}
		// liveness window: client bytes are drained by the reader
		if !g.wait(closed, g.cfg.ReceiveTimeout, log) {
			return
		}
	}
}

// pollOnce sends one snapshot. Only a failed write is returned; upstream
// failures skip the cycle.
func (g *Gateway) pollOnce(ctx context.Context, conn *websocket.Conn, roomName string, season, round int, log zerolog.Logger) error {
	key, err := g.registry.SessionKey(ctx, roomName, func(ctx context.Context) (int, error) {
		return g.resolveSession(ctx, season, round)
	})
	if err != nil {
		log.Debug().Err(err).Msg("no live session yet")
		return nil
	}

	positions, err := g.feed.Positions(ctx, key)
	if err != nil {
		log.Warn().Err(err).Int("session_key", key).Msg("position poll failed")
		return nil
	}
	if len(positions) == 0 {
		return nil
	}
	return conn.WriteJSON(Message{Type: "positions", Data: positions})
}

func (g *Gateway) wait(closed <-chan error, d time.Duration, log zerolog.Logger) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case err := <-closed:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Debug().Err(err).Msg("connection dropped")
		}
		return false
	case <-t.C:
		return true
	}
}

// resolveSession picks the season's race session that starts on the event's
// race day, falling back to the first listed session.
func (g *Gateway) resolveSession(ctx context.Context, season, round int) (int, error) {
	sessions, err := g.feed.RaceSessions(ctx, season)
	if err != nil {
		return 0, err
	}

	if g.events != nil {
		if ev, err := g.events.Event(ctx, season, round); err == nil {
			day := ev.ConcludesAt().UTC().Format(time.DateOnly)
			for _, s := range sessions {
				if s.SessionKey != 0 && s.DateStart.UTC().Format(time.DateOnly) == day {
					return s.SessionKey, nil
				}
			}
		} else {
			g.logger.Debug().Err(err).Int("season", season).Int("round", round).Msg("event lookup failed")
		}
	}

	for _, s := range sessions {
		if s.SessionKey != 0 {
			return s.SessionKey, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoSession, Room(season, round))
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range g.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
