package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/pitwall/pitwall/analysis"
	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	apierrors "github.com/ZanzyTHEbar/pitwall/pitwall/errors"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "Backend is running",
		"service": "F1 Race Engineer",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":        "ok",
		"timestamp":     s.now().UTC().Format(time.RFC3339),
		"cached_rounds": 0,
		"live_rooms":    0,
	}
	if s.deps.Cache != nil {
		body["cached_rounds"] = s.deps.Cache.Store().Len()
	}
	if s.deps.Live != nil {
		body["live_rooms"] = s.deps.Live.Registry().Rooms()
		body["live_connections"] = s.deps.Live.Registry().Connections()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleResource serves one event payload, loading it on a miss.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	round, apiErr := pathInt(r, "round")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	p, err := s.deps.Cache.GetOrLoad(r.Context(), enrichment.Key{Season: season, Round: round}, s.deps.LoadTimeout)
	if err != nil {
		writeError(w, classify(err, "Request timed out loading race data. Try again later."))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type scheduleEvent struct {
	Round    int                  `json:"round"`
	Name     string               `json:"name"`
	Location string               `json:"location"`
	Date     time.Time            `json:"date"`
	Sessions map[string]time.Time `json:"sessions"`
	IsSprint bool                 `json:"is_sprint"`
	Status   string               `json:"status"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	events, err := s.deps.Season.Schedule(r.Context(), season)
	if err != nil {
		writeError(w, classify(err, ""))
		return
	}

	now := s.now()
	out := make([]scheduleEvent, 0, len(events))
	for _, ev := range events {
		se := scheduleEvent{
			Round:    ev.Round,
			Name:     ev.Name,
			Location: ev.Circuit.Location(),
			Date:     ev.Date,
			Sessions: make(map[string]time.Time, len(ev.Sessions)),
			IsSprint: ev.IsSprint(),
			Status:   ev.Status(now),
		}
		for _, sess := range ev.Sessions {
			se.Sessions[sess.Name] = sess.Start
		}
		out = append(out, se)
	}
	writeJSON(w, http.StatusOK, out)
}

type driverRow struct {
	Position int     `json:"position"`
	Code     string  `json:"code"`
	Driver   string  `json:"driver"`
	Team     string  `json:"team"`
	Points   float64 `json:"points"`
	Wins     int     `json:"wins"`
}

// handleDriverStandings falls back to the entry list with zero points before
// the first race of a season.
func (s *Server) handleDriverStandings(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	rows, err := s.deps.Season.DriverStandings(r.Context(), season, 0)
	switch {
	case err == nil:
		out := make([]driverRow, 0, len(rows))
		for _, row := range rows {
			d := analysis.Summarize(row)
			out = append(out, driverRow{Position: d.Position, Code: d.Code, Driver: d.Name, Team: d.Team, Points: d.Points, Wins: d.Wins})
		}
		writeJSON(w, http.StatusOK, out)
		return
	case !errors.Is(err, upstream.ErrNotFound):
		writeError(w, classify(err, ""))
		return
	}

	drivers, err := s.deps.Season.Drivers(r.Context(), season)
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		writeError(w, classify(err, ""))
		return
	}
	out := make([]driverRow, 0, len(drivers))
	for i, d := range drivers {
		out = append(out, driverRow{Position: i + 1, Code: d.Abbreviation(), Driver: d.FullName(), Team: "Unknown"})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConstructorStandings(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}

	rows, err := s.deps.Season.ConstructorStandings(r.Context(), season, 0)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, rows)
		return
	case !errors.Is(err, upstream.ErrNotFound):
		writeError(w, classify(err, ""))
		return
	}

	teams, err := s.deps.Season.Constructors(r.Context(), season)
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		writeError(w, classify(err, ""))
		return
	}
	out := make([]upstream.ConstructorStanding, 0, len(teams))
	for i, t := range teams {
		out = append(out, upstream.ConstructorStanding{Position: i + 1, Team: t.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCompare builds the season head-to-head from the payloads already in
// the cache; it never triggers loads.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	q1, q2 := r.PathValue("driver1"), r.PathValue("driver2")

	standings, err := s.deps.Season.DriverStandings(r.Context(), season, 0)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			writeError(w, apierrors.NewNotFound("standings for "+r.PathValue("season")))
			return
		}
		writeError(w, classify(err, ""))
		return
	}
	d1, ok1 := analysis.FindStanding(standings, q1)
	d2, ok2 := analysis.FindStanding(standings, q2)
	if !ok1 || !ok2 {
		writeError(w, apierrors.NewNotFound("driver '"+q1+"' or '"+q2+"' in the "+r.PathValue("season")+" standings"))
		return
	}

	store := s.deps.Cache.Store()
	var payloads []*enrichment.Payload
	for _, round := range store.Rounds(season) {
		if p, ok := store.Get(enrichment.Key{Season: season, Round: round}); ok {
			payloads = append(payloads, p)
		}
	}
	writeJSON(w, http.StatusOK, analysis.CompareSeason(analysis.Summarize(d1), analysis.Summarize(d2), payloads))
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	season, apiErr := pathInt(r, "season")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	round, apiErr := pathInt(r, "round")
	if apiErr != nil {
		writeError(w, apiErr)
		return
	}
	if s.deps.Live == nil {
		writeError(w, apierrors.NewNotFound("live feed"))
		return
	}
	s.deps.Live.Serve(w, r, season, round)
}

// classify maps domain errors onto API errors.
func classify(err error, timeoutMsg string) *apierrors.APIError {
	var apiErr *apierrors.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, enrichment.ErrLoadTimeout):
		if timeoutMsg == "" {
			timeoutMsg = "Request timed out. Try again later."
		}
		return apierrors.NewTimeout(timeoutMsg)
	case errors.Is(err, upstream.ErrNotFound):
		return apierrors.NewNotFound(err.Error())
	}
	return apierrors.NewUpstream(err)
}
