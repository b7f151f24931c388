package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

type stubFeed struct {
	mu          sync.Mutex
	sessions    []upstream.LiveSession
	positions   []upstream.Position
	failPolls   int
	polls       int
	resolutions int
	polledKeys  []int
}

func (f *stubFeed) RaceSessions(ctx context.Context, season int) ([]upstream.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions++
	return f.sessions, nil
}

func (f *stubFeed) Positions(ctx context.Context, sessionKey int) ([]upstream.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	f.polledKeys = append(f.polledKeys, sessionKey)
	if f.polls <= f.failPolls {
		return nil, errors.New("openf1: 503")
	}
	return f.positions, nil
}

func (f *stubFeed) snapshot() (polls, resolutions int, keys []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, f.resolutions, append([]int(nil), f.polledKeys...)
}

type stubEvents map[int]upstream.Event

func (s stubEvents) Event(ctx context.Context, season, round int) (upstream.Event, error) {
	ev, ok := s[round]
	if !ok {
		return upstream.Event{}, upstream.ErrNotFound
	}
	return ev, nil
}

func samplePositions() []upstream.Position {
	return []upstream.Position{
		{Position: 1, Driver: "81", Gap: "LEADER"},
		{Position: 2, Driver: "4", Gap: "+1.204"},
	}
}

func startGateway(t *testing.T, feed PositionFeed, events EventSource, cfg Config) (*Gateway, string) {
	t.Helper()
	g := NewGateway(NewRegistry(), feed, events, cfg, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.Serve(w, r, 2025, 4)
	}))
	t.Cleanup(srv.Close)
	return g, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_PushesPositions(t *testing.T) {
	feed := &stubFeed{
		sessions:  []upstream.LiveSession{{SessionKey: 9693}},
		positions: samplePositions(),
	}
	g, url := startGateway(t, feed, nil, Config{PollInterval: 20 * time.Millisecond, ReceiveTimeout: 5 * time.Millisecond})

	conn := dial(t, url)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, "positions", msg.Type)
	require.Len(t, msg.Data, 2)
	assert.Equal(t, "LEADER", msg.Data[0].Gap)
	assert.Nil(t, msg.Data[0].Tyre)

	// the loop keeps polling on its own cadence
	readMessage(t, conn)
	assert.Equal(t, 1, g.Registry().Connections())

	_, resolutions, keys := feed.snapshot()
	assert.Equal(t, 1, resolutions)
	assert.Equal(t, 9693, keys[0])
}

func TestGateway_PollFailureKeepsConnection(t *testing.T) {
	feed := &stubFeed{
		sessions:  []upstream.LiveSession{{SessionKey: 1}},
		positions: samplePositions(),
		failPolls: 2,
	}
	_, url := startGateway(t, feed, nil, Config{PollInterval: 10 * time.Millisecond, ReceiveTimeout: 5 * time.Millisecond})

	conn := dial(t, url)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Len(t, msg.Data, 2)
	polls, _, _ := feed.snapshot()
	assert.GreaterOrEqual(t, polls, 3)
}

func TestGateway_ClientMessagesDoNotStallPolling(t *testing.T) {
	feed := &stubFeed{
		sessions:  []upstream.LiveSession{{SessionKey: 1}},
		positions: samplePositions(),
	}
	_, url := startGateway(t, feed, nil, Config{PollInterval: 10 * time.Millisecond, ReceiveTimeout: 5 * time.Millisecond})

	conn := dial(t, url)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
		assert.Equal(t, "positions", readMessage(t, conn).Type)
	}
}

func TestGateway_DisconnectUnsubscribes(t *testing.T) {
	feed := &stubFeed{
		sessions:  []upstream.LiveSession{{SessionKey: 1}},
		positions: samplePositions(),
	}
	g, url := startGateway(t, feed, nil, Config{PollInterval: 10 * time.Millisecond, ReceiveTimeout: 5 * time.Millisecond})

	conn := dial(t, url)
	readMessage(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return g.Registry().Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, g.Registry().Rooms())

	subs, err := g.Registry().Subscribers(Room(2025, 4))
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestGateway_RejectsUnknownOrigin(t *testing.T) {
	feed := &stubFeed{}
	_, url := startGateway(t, feed, nil, Config{AllowedOrigins: []string{"http://localhost:3000"}})

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGateway_ResolvesSessionByRaceDay(t *testing.T) {
	race := time.Date(2025, 4, 13, 15, 0, 0, 0, time.UTC)
	feed := &stubFeed{
		sessions: []upstream.LiveSession{
			{SessionKey: 100, DateStart: time.Date(2025, 3, 16, 4, 0, 0, 0, time.UTC)},
			{SessionKey: 400, DateStart: race},
		},
	}
	events := stubEvents{4: {Season: 2025, Round: 4, Sessions: []upstream.Session{{Name: upstream.SessionRace, Start: race}}}}
	g := NewGateway(NewRegistry(), feed, events, Config{}, zerolog.Nop())

	key, err := g.resolveSession(context.Background(), 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, 400, key)

	// unknown round falls back to the first session
	key, err = g.resolveSession(context.Background(), 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, 100, key)
}

func TestGateway_NoSession(t *testing.T) {
	g := NewGateway(NewRegistry(), &stubFeed{}, nil, Config{}, zerolog.Nop())
	_, err := g.resolveSession(context.Background(), 2025, 4)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestRegistry_Membership(t *testing.T) {
	r := NewRegistry()
	a := r.Subscribe("2025-4", "10.0.0.1:1")
	b := r.Subscribe("2025-4", "10.0.0.2:1")
	r.Subscribe("2025-5", "10.0.0.3:1")

	assert.Equal(t, 2, r.Rooms())
	assert.Equal(t, 3, r.Connections())
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, r.Unsubscribe(a))
	require.ErrorIs(t, r.Unsubscribe(a), ErrSubscriberNotFound)
	require.ErrorIs(t, r.Unsubscribe(&Subscriber{Room: "1999-1"}), ErrRoomNotFound)

	subs, err := r.Subscribers("2025-4")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, b.ID, subs[0].ID)

	_, err = r.Subscribers("2030-1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRegistry_SessionKeyRemembered(t *testing.T) {
	r := NewRegistry()
	r.Subscribe("2025-4", "")

	_, err := r.SessionKey(context.Background(), "2025-9", func(context.Context) (int, error) { return 1, nil })
	require.ErrorIs(t, err, ErrRoomNotFound)

	calls := 0
	failing := func(context.Context) (int, error) { calls++; return 0, ErrNoSession }
	_, err = r.SessionKey(context.Background(), "2025-4", failing)
	require.ErrorIs(t, err, ErrNoSession)

	ok := func(context.Context) (int, error) { calls++; return 77, nil }
	for i := 0; i < 3; i++ {
		key, err := r.SessionKey(context.Background(), "2025-4", ok)
		require.NoError(t, err)
		assert.Equal(t, 77, key)
	}
	assert.Equal(t, 2, calls)
}
