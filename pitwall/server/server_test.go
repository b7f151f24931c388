package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pitwall/pitwall/analysis"
	"github.com/ZanzyTHEbar/pitwall/pitwall/circuits"
	"github.com/ZanzyTHEbar/pitwall/pitwall/config"
	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness"
	ports "github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/ports"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/tools"
	"github.com/ZanzyTHEbar/pitwall/pitwall/live"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

var (
	nor = upstream.Driver{Code: "NOR", GivenName: "Lando", FamilyName: "Norris"}
	pia = upstream.Driver{Code: "PIA", GivenName: "Oscar", FamilyName: "Piastri"}
)

type fakeSeason struct {
	standings bool
	err       error
}

func (f *fakeSeason) Schedule(ctx context.Context, season int) ([]upstream.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	race := time.Date(2025, 4, 13, 15, 0, 0, 0, time.UTC)
	return []upstream.Event{{
		Season: season, Round: 1, Name: "Bahrain Grand Prix",
		Circuit:  upstream.Circuit{Locality: "Sakhir", Country: "Bahrain"},
		Date:     race,
		Sessions: []upstream.Session{{Name: upstream.SessionRace, Start: race}},
	}}, nil
}

func (f *fakeSeason) DriverStandings(ctx context.Context, season, round int) ([]upstream.DriverStanding, error) {
	if !f.standings {
		return nil, upstream.ErrNotFound
	}
	return []upstream.DriverStanding{
		{Position: 1, Driver: pia, Teams: []string{"McLaren"}, Points: 25, Wins: 1},
		{Position: 2, Driver: nor, Teams: []string{"McLaren"}, Points: 18},
	}, nil
}

func (f *fakeSeason) ConstructorStandings(ctx context.Context, season, round int) ([]upstream.ConstructorStanding, error) {
	if !f.standings {
		return nil, upstream.ErrNotFound
	}
	return []upstream.ConstructorStanding{{Position: 1, Team: "McLaren", Points: 43, Wins: 1}}, nil
}

func (f *fakeSeason) Drivers(ctx context.Context, season int) ([]upstream.Driver, error) {
	return []upstream.Driver{nor, pia}, nil
}

func (f *fakeSeason) Constructors(ctx context.Context, season int) ([]upstream.Constructor, error) {
	return []upstream.Constructor{{ID: "mclaren", Name: "McLaren"}, {ID: "ferrari", Name: "Ferrari"}}, nil
}

// scriptedProvider replays one turn per invocation.
type scriptedProvider struct {
	turns [][]ports.CompletionChunk
	n     int
	err   error
}

func (p *scriptedProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	return ports.Completion{}, errors.New("not used")
}

func (p *scriptedProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	chunks := p.turns[min(p.n, len(p.turns)-1)]
	p.n++
	ch := make(chan ports.CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type blockingLoader struct {
	release chan struct{}
}

func (l *blockingLoader) Load(ctx context.Context, key enrichment.Key) (*enrichment.Payload, error) {
	if key.Round == 2 {
		<-l.release
	}
	if key.Round > 2 {
		return nil, upstream.ErrNotFound
	}
	return &enrichment.Payload{
		Season: key.Season, Round: key.Round, Name: "Bahrain Grand Prix",
		Circuit:        &circuits.Info{},
		ConcludesAt:      time.Date(2025, 4, 13, 15, 0, 0, 0, time.UTC),
		ResultsAttempted: true,
		HasRaceResults:   true,
		RaceResults: []enrichment.ResultRow{
			{Position: intp(1), Driver: "PIA"},
			{Position: intp(3), Driver: "NOR"},
		},
	}, nil
}

func intp(i int) *int { return &i }

type testEnv struct {
	srv      *Server
	season   *fakeSeason
	cache    *enrichment.Cache
	provider *scriptedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loader := &blockingLoader{release: make(chan struct{})}
	t.Cleanup(func() { close(loader.release) })

	cache := enrichment.NewCache(enrichment.NewStore(), enrichment.NewLoaderLock(), loader, zerolog.Nop(),
		enrichment.WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }))
	provider := &scriptedProvider{}
	orch := harness.NewHarnessOrchestrator(provider, tools.Default(tools.Sources{}),
		harness.NewExecutor(nil, 2, time.Second, nil), nil, nil, nil, nil, zerolog.Nop())
	season := &fakeSeason{standings: true}

	srv := New(Deps{
		Orchestrator: orch,
		Season:       season,
		Cache:        cache,
		LoadTimeout:  50 * time.Millisecond,
		Live:         live.NewGateway(live.NewRegistry(), &stubFeed{}, nil, live.Config{PollInterval: 20 * time.Millisecond}, zerolog.Nop()),
	}, config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}, zerolog.Nop())
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	return &testEnv{srv: srv, season: season, cache: cache, provider: provider}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Backend is running", decode[map[string]string](t, rec)["status"])

	env.do(http.MethodGet, "/api/resource/2025/1", "")
	health := decode[map[string]any](t, env.do(http.MethodGet, "/api/health", ""))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["cached_rounds"])
	assert.Equal(t, float64(0), health["live_rooms"])
	assert.Equal(t, "2025-06-01T00:00:00Z", health["timestamp"])
}

func TestChat_StreamsMarkersAndText(t *testing.T) {
	env := newTestEnv(t)
	env.provider.turns = [][]ports.CompletionChunk{
		{{ToolCalls: []ports.ToolCall{{ID: "c1", Name: "get_track_conditions", Args: json.RawMessage(`{"location":"Monza"}`)}}, Done: true}},
		{{DeltaText: "Box "}, {DeltaText: "this lap."}, {Done: true}},
	}

	rec := env.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"system","content":"ignored"},{"role":"user","content":"Weather at Monza?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Conversation-Id"))
	assert.Equal(t,
		"[TOOL_START]Get Track Conditions[/TOOL_START][TOOL_END]Get Track Conditions[/TOOL_END]Box this lap.",
		rec.Body.String())
}

func TestChat_ProviderFailureIsOneErrorChunk(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = errors.New("quota exceeded")

	rec := env.do(http.MethodPost, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "**System Error:** My telemetry failed. Reason: "))
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestChat_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/chat", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decode[map[string]any](t, rec)["code"])

	rec = env.do(http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResource(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/race/2025/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[enrichment.Payload](t, rec)
	assert.Equal(t, "Bahrain Grand Prix", p.Name)

	rec = env.do(http.MethodGet, "/api/resource/2025/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/resource/2025/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResource_Timeout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/resource/2025/2", "")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, true, body["timeout"])
	assert.Equal(t, "Request timed out loading race data. Try again later.", body["error"])
}

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)

	events := decode[[]map[string]any](t, env.do(http.MethodGet, "/api/schedule/2025", ""))
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0]["status"])
	assert.Equal(t, "Sakhir, Bahrain", events[0]["location"])
	assert.Equal(t, false, events[0]["is_sprint"])

	env.season.err = errors.New("ergast: 503")
	assert.Equal(t, http.StatusBadGateway, env.do(http.MethodGet, "/api/schedule/2025", "").Code)
}

func TestStandings(t *testing.T) {
	env := newTestEnv(t)

	drivers := decode[[]driverRow](t, env.do(http.MethodGet, "/api/standings/drivers/2025", ""))
	require.Len(t, drivers, 2)
	assert.Equal(t, driverRow{Position: 2, Code: "NOR", Driver: "Lando Norris", Team: "McLaren", Points: 18}, drivers[1])

	teams := decode[[]upstream.ConstructorStanding](t, env.do(http.MethodGet, "/api/standings/constructors/2025", ""))
	assert.Equal(t, 43.0, teams[0].Points)
}

func TestStandings_EntryListFallback(t *testing.T) {
	env := newTestEnv(t)
	env.season.standings = false

	drivers := decode[[]driverRow](t, env.do(http.MethodGet, "/api/standings/drivers/2026", ""))
	require.Len(t, drivers, 2)
	assert.Equal(t, "Lando Norris", drivers[0].Driver)
	assert.Zero(t, drivers[0].Points)

	teams := decode[[]upstream.ConstructorStanding](t, env.do(http.MethodGet, "/api/standings/constructors/2026", ""))
	require.Len(t, teams, 2)
	assert.Equal(t, upstream.ConstructorStanding{Position: 2, Team: "Ferrari"}, teams[1])
}

func TestCompare(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/resource/2025/1", "")

	rec := env.do(http.MethodGet, "/api/compare/2025/norris/PIA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[analysis.Comparison](t, rec)
	assert.Equal(t, "NOR", c.Driver1.Code)
	assert.Equal(t, analysis.Tally{D1: 0, D2: 1}, c.RaceH2H)
	require.Len(t, c.Rounds, 1)

	rec = env.do(http.MethodGet, "/api/compare/2025/norris/senna", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type stubFeed struct{}

func (stubFeed) RaceSessions(ctx context.Context, season int) ([]upstream.LiveSession, error) {
	return []upstream.LiveSession{{SessionKey: 9158}}, nil
}

func (stubFeed) Positions(ctx context.Context, sessionKey int) ([]upstream.Position, error) {
	return []upstream.Position{{Position: 1, Driver: "PIA", Gap: "Leader"}}, nil
}

func TestLive_UpgradesThroughMiddleware(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live/2025/1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg live.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "positions", msg.Type)
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "PIA", msg.Data[0].Driver)
}

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "Get Race Results", FriendlyName("get_race_results"))
	assert.Equal(t, "Consult Rulebook", FriendlyName("consult_rulebook"))
}
