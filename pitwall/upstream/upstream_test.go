package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/adapters"
)

const scheduleFixture = `{"MRData":{"RaceTable":{"season":"2025","Races":[
 {"season":"2025","round":"1","raceName":"Australian Grand Prix",
  "Circuit":{"circuitId":"albert_park","circuitName":"Albert Park Grand Prix Circuit","Location":{"locality":"Melbourne","country":"Australia"}},
  "date":"2025-03-16","time":"04:00:00Z",
  "FirstPractice":{"date":"2025-03-14","time":"01:30:00Z"},
  "Qualifying":{"date":"2025-03-15","time":"05:00:00Z"}},
 {"season":"2025","round":"2","raceName":"Chinese Grand Prix",
  "Circuit":{"circuitId":"shanghai","circuitName":"Shanghai International Circuit","Location":{"locality":"Shanghai","country":"China"}},
  "date":"2025-03-23","time":"07:00:00Z",
  "FirstPractice":{"date":"2025-03-21","time":"03:30:00Z"},
  "SprintQualifying":{"date":"2025-03-21","time":"07:30:00Z"},
  "Sprint":{"date":"2025-03-22","time":"03:00:00Z"},
  "Qualifying":{"date":"2025-03-22","time":"07:00:00Z"}}
]}}}`

const resultsFixture = `{"MRData":{"RaceTable":{"Races":[{"season":"2025","round":"1","raceName":"Australian Grand Prix",
 "Circuit":{"circuitId":"albert_park","circuitName":"Albert Park","Location":{"locality":"Melbourne","country":"Australia"}},
 "date":"2025-03-16","time":"04:00:00Z",
 "Results":[
  {"position":"1","positionText":"1","points":"25","grid":"1","laps":"57","status":"Finished",
   "Driver":{"driverId":"norris","code":"NOR","givenName":"Lando","familyName":"Norris"},
   "Constructor":{"constructorId":"mclaren","name":"McLaren"},"Time":{"time":"1:42:06.304"}},
  {"position":"2","positionText":"2","points":"18","grid":"3","laps":"57","status":"Finished",
   "Driver":{"driverId":"max_verstappen","code":"VER","givenName":"Max","familyName":"Verstappen"},
   "Constructor":{"constructorId":"red_bull","name":"Red Bull"},"Time":{"time":"+0.895"}},
  {"position":"20","positionText":"R","points":"0","grid":"0","laps":"0","status":"Accident",
   "Driver":{"driverId":"doohan","code":"DOO","givenName":"Jack","familyName":"Doohan"},
   "Constructor":{"constructorId":"alpine","name":"Alpine F1 Team"}}
 ]}]}}}`

const qualifyingFixture = `{"MRData":{"RaceTable":{"Races":[{"season":"2025","round":"1","QualifyingResults":[
 {"position":"1","Driver":{"code":"NOR","givenName":"Lando","familyName":"Norris"},"Constructor":{"name":"McLaren"},"Q1":"1:15.912","Q2":"1:15.415","Q3":"1:15.096"},
 {"position":"2","Driver":{"code":"PIA","givenName":"Oscar","familyName":"Piastri"},"Constructor":{"name":"McLaren"},"Q1":"1:16.062","Q2":"1:15.468","Q3":"1:15.180"},
 {"position":"16","Driver":{"code":"BOR","givenName":"Gabriel","familyName":"Bortoleto"},"Constructor":{"name":"Sauber"},"Q1":"1:16.516"}
]}]}}}`

const standingsFixture = `{"MRData":{"StandingsTable":{"season":"2025","StandingsLists":[{"season":"2025","round":"1","DriverStandings":[
 {"position":"1","points":"25","wins":"1","Driver":{"code":"NOR","givenName":"Lando","familyName":"Norris"},"Constructors":[{"name":"McLaren"}]},
 {"position":"2","points":"18","wins":"0","Driver":{"code":"VER","givenName":"Max","familyName":"Verstappen"},"Constructors":[{"name":"Red Bull"}]}
]}]}}}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		Timeout:  2 * time.Second,
		Cache:    adapters.NewLRUCache(16),
		CacheTTL: time.Minute,
		Retries:  2,
		Backoff:  time.Millisecond,
		Logger:   zerolog.New(zerolog.Nop()),
	})
	return c, srv
}

func TestErgast_Schedule(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025.json", r.URL.Path)
		_, _ = w.Write([]byte(scheduleFixture))
	})
	e := NewErgast(c, srv.URL)

	events, err := e.Schedule(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, events, 2)

	aus := events[0]
	assert.Equal(t, 1, aus.Round)
	assert.Equal(t, "Melbourne, Australia", aus.Circuit.Location())
	assert.False(t, aus.IsSprint())
	assert.Equal(t, time.Date(2025, 3, 16, 4, 0, 0, 0, time.UTC), aus.ConcludesAt())
	assert.Equal(t, "Australian GP", aus.ShortName())

	china := events[1]
	assert.True(t, china.IsSprint())
	_, ok := china.Session(SessionSprintQualifying)
	assert.True(t, ok)

	ev, ok := MatchEvent(events, "china")
	assert.True(t, ok)
	assert.Equal(t, 2, ev.Round)
	ev, ok = MatchEvent(events, "Australian Grand Prix")
	assert.True(t, ok)
	assert.Equal(t, 1, ev.Round)
	_, ok = MatchEvent(events, "Monaco")
	assert.False(t, ok)
}

func TestEvent_Status(t *testing.T) {
	race := time.Date(2025, 5, 25, 13, 0, 0, 0, time.UTC)
	ev := Event{
		Date: race,
		Sessions: []Session{
			{Name: SessionPractice1, Start: race.Add(-48 * time.Hour)},
			{Name: SessionRace, Start: race},
		},
	}

	assert.Equal(t, StatusUpcoming, ev.Status(race.Add(-72*time.Hour)))
	assert.Equal(t, StatusInProgress, ev.Status(race.Add(-time.Hour)))
	assert.Equal(t, StatusInProgress, ev.Status(race.Add(2*time.Hour)), "inside the completion buffer")
	assert.Equal(t, StatusCompleted, ev.Status(race.Add(4*time.Hour)))
	assert.False(t, ev.Concluded(race.Add(3*time.Hour), 3*time.Hour))
}

func TestErgast_RaceResults(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025/1/results.json", r.URL.Path)
		_, _ = w.Write([]byte(resultsFixture))
	})
	e := NewErgast(c, srv.URL)

	rows, err := e.RaceResults(context.Background(), 2025, 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 1, rows[0].Position)
	assert.Equal(t, "NOR", rows[0].Driver.Code)
	assert.Equal(t, "Lando Norris", rows[0].Driver.FullName())
	assert.Equal(t, 25.0, rows[0].Points)
	assert.True(t, rows[0].Finished())
	assert.Equal(t, 3, rows[1].Grid)

	assert.Equal(t, 0, rows[2].Position, "retired entries are unclassified")
	assert.Equal(t, "Accident", rows[2].Status)
}

func TestErgast_QualifyingResults(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(qualifyingFixture))
	})
	e := NewErgast(c, srv.URL)

	rows, err := e.QualifyingResults(context.Background(), 2025, 1)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	best, ok := rows[0].BestLap()
	require.True(t, ok)
	assert.Equal(t, time.Minute+15096*time.Millisecond, best)
	assert.Empty(t, rows[2].Q3)
	assert.Equal(t, "1:16.516", rows[2].Segment("Q1"))
}

func TestErgast_SprintQualifyingUnavailable(t *testing.T) {
	e := NewErgast(NewClient(Options{}), "http://unused.invalid")
	_, err := e.SprintQualifyingResults(context.Background(), 2025, 2)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestErgast_DriverStandingsPerRound(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2025/1/driverStandings.json", r.URL.Path)
		_, _ = w.Write([]byte(standingsFixture))
	})
	e := NewErgast(c, srv.URL)

	rows, err := e.DriverStandings(context.Background(), 2025, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"McLaren"}, rows[0].Teams)
	assert.True(t, rows[1].Driver.Matches("verst"))
	assert.True(t, rows[1].Driver.Matches("ver"))
	assert.False(t, rows[1].Driver.Matches("norris"))
}

func TestErgast_EmptyTableIsNotFound(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MRData":{"RaceTable":{"Races":[]}}}`))
	})
	e := NewErgast(c, srv.URL)

	_, err := e.RaceResults(context.Background(), 2025, 30)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_CachesResponses(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(scheduleFixture))
	})
	e := NewErgast(c, srv.URL)

	for i := 0; i < 3; i++ {
		_, err := e.Schedule(context.Background(), 2025)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	var out map[string]bool
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/x", &out))
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL+"/missing", &out)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())

	c2, srv2 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	err = c2.GetJSON(context.Background(), srv2.URL+"/bad", &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Limiter: adapters.NewBlockingTokenBucket(1, 50*time.Millisecond)})

	start := time.Now()
	var out map[string]any
	for i := 0; i < 3; i++ {
		require.NoError(t, c.GetJSON(context.Background(), srv.URL, &out))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestOpenF1_Positions(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/position", r.URL.Path)
		assert.Equal(t, "9999", r.URL.Query().Get("session_key"))
		assert.Equal(t, "20", r.URL.Query().Get("position<"))
		_, _ = w.Write([]byte(`[
			{"driver_number":1,"position":2,"date":"t1"},
			{"driver_number":4,"position":1,"date":"t1"},
			{"driver_number":1,"position":1,"date":"t2","gap_to_leader":null},
			{"driver_number":4,"position":2,"date":"t2","gap_to_leader":1.25},
			{"position":3}
		]`))
	})
	o := NewOpenF1(c, srv.URL)

	pos, err := o.Positions(context.Background(), 9999)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, "1", pos[0].Driver)
	assert.Equal(t, "LEADER", pos[0].Gap)
	assert.Equal(t, "4", pos[1].Driver)
	assert.Equal(t, "+1.250", pos[1].Gap)

	raw, err := json.Marshal(pos[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tyre":null`)
}

func TestOpenF1_PositionsBypassCache(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		body, _ := json.Marshal([]map[string]any{{"driver_number": 1, "position": n, "date": "t"}})
		_, _ = w.Write(body)
	})
	o := NewOpenF1(c, srv.URL)

	first, err := o.Positions(context.Background(), 9999)
	require.NoError(t, err)
	second, err := o.Positions(context.Background(), 9999)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, 1, first[0].Position)
	assert.Equal(t, 2, second[0].Position)
}

func TestOpenF1_RaceSessions(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025", r.URL.Query().Get("year"))
		assert.Equal(t, "Race", r.URL.Query().Get("session_type"))
		_, _ = w.Write([]byte(`[{"session_key":9693,"meeting_key":1254,"session_name":"Race","session_type":"Race","location":"Melbourne","country_name":"Australia","date_start":"2025-03-16T04:00:00+00:00","year":2025}]`))
	})
	o := NewOpenF1(c, srv.URL)

	sessions, err := o.RaceSessions(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 9693, sessions[0].SessionKey)
	assert.Equal(t, 2025, sessions[0].DateStart.Year())
}

func TestTavily_Search(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var body tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3, body.MaxResults)
		assert.True(t, strings.Contains(body.Query, "Hamilton"))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"a","content":"x","url":"https://a"},
			{"title":"b","content":"y","url":"https://b"},
			{"title":"c","content":"z","url":"https://c"},
			{"title":"d","content":"w","url":"https://d"}]}`))
	})
	tv := NewTavily(c, srv.URL, "key")

	res, err := tv.Search(context.Background(), "Hamilton Ferrari", 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)

	_, err = NewTavily(c, srv.URL, "").Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestParseLapTime(t *testing.T) {
	d, err := ParseLapTime("1:23.456")
	require.NoError(t, err)
	assert.Equal(t, 83456*time.Millisecond, d)

	d, err = ParseLapTime("45.1")
	require.NoError(t, err)
	assert.Equal(t, 45100*time.Millisecond, d)

	_, err = ParseLapTime("")
	assert.Error(t, err)
}
