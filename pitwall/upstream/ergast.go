package upstream

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Ergast reads schedules, classifications and standings from an
// Ergast-compatible API.
type Ergast struct {
	client  *Client
	baseURL string
}

// NewErgast creates an Ergast source rooted at baseURL.
func NewErgast(client *Client, baseURL string) *Ergast {
	return &Ergast{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type mrData[T any] struct {
	MRData T `json:"MRData"`
}

type raceTable struct {
	RaceTable struct {
		Races []wireRace `json:"Races"`
	} `json:"RaceTable"`
}

type standingsTable struct {
	StandingsTable struct {
		StandingsLists []struct {
			DriverStandings      []wireDriverStanding      `json:"DriverStandings"`
			ConstructorStandings []wireConstructorStanding `json:"ConstructorStandings"`
		} `json:"StandingsLists"`
	} `json:"StandingsTable"`
}

type driverTable struct {
	DriverTable struct {
		Drivers []wireDriver `json:"Drivers"`
	} `json:"DriverTable"`
}

type constructorTable struct {
	ConstructorTable struct {
		Constructors []wireConstructor `json:"Constructors"`
	} `json:"ConstructorTable"`
}

type wireDateTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type wireRace struct {
	Season   string `json:"season"`
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Circuit  struct {
		CircuitID   string `json:"circuitId"`
		CircuitName string `json:"circuitName"`
		Location    struct {
			Locality string `json:"locality"`
			Country  string `json:"country"`
		} `json:"Location"`
	} `json:"Circuit"`
	Date             string        `json:"date"`
	Time             string        `json:"time"`
	FirstPractice    *wireDateTime `json:"FirstPractice"`
	SecondPractice   *wireDateTime `json:"SecondPractice"`
	ThirdPractice    *wireDateTime `json:"ThirdPractice"`
	Qualifying       *wireDateTime `json:"Qualifying"`
	Sprint           *wireDateTime `json:"Sprint"`
	SprintQualifying *wireDateTime `json:"SprintQualifying"`
	SprintShootout   *wireDateTime `json:"SprintShootout"`

	Results           []wireResult     `json:"Results"`
	SprintResults     []wireResult     `json:"SprintResults"`
	QualifyingResults []wireQualifying `json:"QualifyingResults"`
}

type wireDriver struct {
	DriverID        string `json:"driverId"`
	PermanentNumber string `json:"permanentNumber"`
	Code            string `json:"code"`
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
}

type wireConstructor struct {
	ConstructorID string `json:"constructorId"`
	Name          string `json:"name"`
}

type wireResult struct {
	Position     string          `json:"position"`
	PositionText string          `json:"positionText"`
	Points       string          `json:"points"`
	Driver       wireDriver      `json:"Driver"`
	Constructor  wireConstructor `json:"Constructor"`
	Grid         string          `json:"grid"`
	Laps         string          `json:"laps"`
	Status       string          `json:"status"`
	Time         *struct {
		Time string `json:"time"`
	} `json:"Time"`
}

type wireQualifying struct {
	Position    string          `json:"position"`
	Driver      wireDriver      `json:"Driver"`
	Constructor wireConstructor `json:"Constructor"`
	Q1          string          `json:"Q1"`
	Q2          string          `json:"Q2"`
	Q3          string          `json:"Q3"`
}

type wireDriverStanding struct {
	Position     string            `json:"position"`
	Points       string            `json:"points"`
	Wins         string            `json:"wins"`
	Driver       wireDriver        `json:"Driver"`
	Constructors []wireConstructor `json:"Constructors"`
}

type wireConstructorStanding struct {
	Position    string          `json:"position"`
	Points      string          `json:"points"`
	Wins        string          `json:"wins"`
	Constructor wireConstructor `json:"Constructor"`
}

// Schedule lists every round of season in order.
func (e *Ergast) Schedule(ctx context.Context, season int) ([]Event, error) {
	var out mrData[raceTable]
	if err := e.client.GetJSON(ctx, fmt.Sprintf("%s/%d.json?limit=100", e.baseURL, season), &out); err != nil {
		return nil, fmt.Errorf("schedule %d: %w", season, err)
	}
	races := out.MRData.RaceTable.Races
	if len(races) == 0 {
		return nil, fmt.Errorf("schedule %d: %w", season, ErrNotFound)
	}

	events := make([]Event, 0, len(races))
	for _, r := range races {
		events = append(events, r.event())
	}
	return events, nil
}

// Event returns one round of season.
func (e *Ergast) Event(ctx context.Context, season, round int) (Event, error) {
	events, err := e.Schedule(ctx, season)
	if err != nil {
		return Event{}, err
	}
	for _, ev := range events {
		if ev.Round == round {
			return ev, nil
		}
	}
	return Event{}, fmt.Errorf("round %d of %d: %w", round, season, ErrNotFound)
}

// FindEvent resolves a Grand Prix by round number, event name, locality or
// country (case-insensitive substring).
func (e *Ergast) FindEvent(ctx context.Context, season int, query string) (Event, error) {
	events, err := e.Schedule(ctx, season)
	if err != nil {
		return Event{}, err
	}
	if ev, ok := MatchEvent(events, query); ok {
		return ev, nil
	}
	return Event{}, fmt.Errorf("grand prix %q in %d: %w", query, season, ErrNotFound)
}

// MatchEvent picks the event that query names.
func MatchEvent(events []Event, query string) (Event, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.TrimSuffix(strings.TrimSuffix(q, " grand prix"), " gp")
	if q == "" {
		return Event{}, false
	}
	if n, err := strconv.Atoi(q); err == nil {
		for _, ev := range events {
			if ev.Round == n {
				return ev, true
			}
		}
		return Event{}, false
	}
	for _, ev := range events {
		fields := []string{ev.Name, ev.Circuit.Locality, ev.Circuit.Country, ev.Circuit.Name, ev.Circuit.ID}
		for _, f := range fields {
			if f != "" && strings.Contains(strings.ToLower(f), q) {
				return ev, true
			}
		}
	}
	return Event{}, false
}

// RaceResults returns the race classification of a round.
func (e *Ergast) RaceResults(ctx context.Context, season, round int) ([]Classification, error) {
	race, err := e.round(ctx, season, round, "results")
	if err != nil {
		return nil, err
	}
	if len(race.Results) == 0 {
		return nil, fmt.Errorf("race results %d/%d: %w", season, round, ErrNotFound)
	}
	return classifications(race.Results), nil
}

// SprintResults returns the sprint classification of a round.
func (e *Ergast) SprintResults(ctx context.Context, season, round int) ([]Classification, error) {
	race, err := e.round(ctx, season, round, "sprint")
	if err != nil {
		return nil, err
	}
	if len(race.SprintResults) == 0 {
		return nil, fmt.Errorf("sprint results %d/%d: %w", season, round, ErrNotFound)
	}
	return classifications(race.SprintResults), nil
}

// QualifyingResults returns the qualifying session of a round.
func (e *Ergast) QualifyingResults(ctx context.Context, season, round int) ([]QualifyingEntry, error) {
	race, err := e.round(ctx, season, round, "qualifying")
	if err != nil {
		return nil, err
	}
	if len(race.QualifyingResults) == 0 {
		return nil, fmt.Errorf("qualifying %d/%d: %w", season, round, ErrNotFound)
	}

	out := make([]QualifyingEntry, 0, len(race.QualifyingResults))
	for _, q := range race.QualifyingResults {
		out = append(out, QualifyingEntry{
			Position: atoi(q.Position),
			Driver:   q.Driver.driver(),
			Team:     q.Constructor.Name,
			Q1:       q.Q1,
			Q2:       q.Q2,
			Q3:       q.Q3,
		})
	}
	return out, nil
}

// SprintQualifyingResults is not published by Ergast-compatible APIs.
func (e *Ergast) SprintQualifyingResults(ctx context.Context, season, round int) ([]QualifyingEntry, error) {
	return nil, fmt.Errorf("sprint qualifying %d/%d: %w", season, round, ErrUnavailable)
}

// DriverStandings returns the drivers' championship after round, or the
// latest standings when round is 0.
func (e *Ergast) DriverStandings(ctx context.Context, season, round int) ([]DriverStanding, error) {
	var out mrData[standingsTable]
	if err := e.client.GetJSON(ctx, e.standingsURL(season, round, "driverStandings"), &out); err != nil {
		return nil, fmt.Errorf("driver standings %d: %w", season, err)
	}
	lists := out.MRData.StandingsTable.StandingsLists
	if len(lists) == 0 || len(lists[0].DriverStandings) == 0 {
		return nil, fmt.Errorf("driver standings %d: %w", season, ErrNotFound)
	}

	rows := lists[0].DriverStandings
	standings := make([]DriverStanding, 0, len(rows))
	for _, r := range rows {
		teams := make([]string, 0, len(r.Constructors))
		for _, c := range r.Constructors {
			teams = append(teams, c.Name)
		}
		standings = append(standings, DriverStanding{
			Position: atoi(r.Position),
			Driver:   r.Driver.driver(),
			Teams:    teams,
			Points:   atof(r.Points),
			Wins:     atoi(r.Wins),
		})
	}
	return standings, nil
}

// ConstructorStandings returns the constructors' championship after round,
// or the latest standings when round is 0.
func (e *Ergast) ConstructorStandings(ctx context.Context, season, round int) ([]ConstructorStanding, error) {
	var out mrData[standingsTable]
	if err := e.client.GetJSON(ctx, e.standingsURL(season, round, "constructorStandings"), &out); err != nil {
		return nil, fmt.Errorf("constructor standings %d: %w", season, err)
	}
	lists := out.MRData.StandingsTable.StandingsLists
	if len(lists) == 0 || len(lists[0].ConstructorStandings) == 0 {
		return nil, fmt.Errorf("constructor standings %d: %w", season, ErrNotFound)
	}

	rows := lists[0].ConstructorStandings
	standings := make([]ConstructorStanding, 0, len(rows))
	for _, r := range rows {
		standings = append(standings, ConstructorStanding{
			Position: atoi(r.Position),
			Team:     r.Constructor.Name,
			Points:   atof(r.Points),
			Wins:     atoi(r.Wins),
		})
	}
	return standings, nil
}

// Drivers lists the entrants of season.
func (e *Ergast) Drivers(ctx context.Context, season int) ([]Driver, error) {
	var out mrData[driverTable]
	if err := e.client.GetJSON(ctx, fmt.Sprintf("%s/%d/drivers.json?limit=100", e.baseURL, season), &out); err != nil {
		return nil, fmt.Errorf("drivers %d: %w", season, err)
	}
	drivers := make([]Driver, 0, len(out.MRData.DriverTable.Drivers))
	for _, d := range out.MRData.DriverTable.Drivers {
		drivers = append(drivers, d.driver())
	}
	if len(drivers) == 0 {
		return nil, fmt.Errorf("drivers %d: %w", season, ErrNotFound)
	}
	return drivers, nil
}

// Constructors lists the teams of season.
func (e *Ergast) Constructors(ctx context.Context, season int) ([]Constructor, error) {
	var out mrData[constructorTable]
	if err := e.client.GetJSON(ctx, fmt.Sprintf("%s/%d/constructors.json?limit=100", e.baseURL, season), &out); err != nil {
		return nil, fmt.Errorf("constructors %d: %w", season, err)
	}
	teams := make([]Constructor, 0, len(out.MRData.ConstructorTable.Constructors))
	for _, c := range out.MRData.ConstructorTable.Constructors {
		teams = append(teams, Constructor{ID: c.ConstructorID, Name: c.Name})
	}
	if len(teams) == 0 {
		return nil, fmt.Errorf("constructors %d: %w", season, ErrNotFound)
	}
	return teams, nil
}

func (e *Ergast) round(ctx context.Context, season, round int, resource string) (wireRace, error) {
	var out mrData[raceTable]
	url := fmt.Sprintf("%s/%d/%d/%s.json?limit=100", e.baseURL, season, round, resource)
	if err := e.client.GetJSON(ctx, url, &out); err != nil {
		return wireRace{}, fmt.Errorf("%s %d/%d: %w", resource, season, round, err)
	}
	if len(out.MRData.RaceTable.Races) == 0 {
		return wireRace{}, fmt.Errorf("%s %d/%d: %w", resource, season, round, ErrNotFound)
	}
	return out.MRData.RaceTable.Races[0], nil
}

func (e *Ergast) standingsURL(season, round int, resource string) string {
	if round > 0 {
		return fmt.Sprintf("%s/%d/%d/%s.json?limit=100", e.baseURL, season, round, resource)
	}
	return fmt.Sprintf("%s/%d/%s.json?limit=100", e.baseURL, season, resource)
}

func (r wireRace) event() Event {
	ev := Event{
		Season: atoi(r.Season),
		Round:  atoi(r.Round),
		Name:   r.RaceName,
		Circuit: Circuit{
			ID:       r.Circuit.CircuitID,
			Name:     r.Circuit.CircuitName,
			Locality: r.Circuit.Location.Locality,
			Country:  r.Circuit.Location.Country,
		},
		Date: parseDateTime(r.Date, r.Time),
	}

	sprintQuali := r.SprintQualifying
	if sprintQuali == nil {
		sprintQuali = r.SprintShootout
	}
	for _, s := range []struct {
		name string
		dt   *wireDateTime
	}{
		{SessionPractice1, r.FirstPractice},
		{SessionPractice2, r.SecondPractice},
		{SessionPractice3, r.ThirdPractice},
		{SessionSprintQualifying, sprintQuali},
		{SessionSprint, r.Sprint},
		{SessionQualifying, r.Qualifying},
		{SessionRace, &wireDateTime{Date: r.Date, Time: r.Time}},
	} {
		if s.dt == nil || s.dt.Date == "" {
			continue
		}
		ev.Sessions = append(ev.Sessions, Session{Name: s.name, Start: parseDateTime(s.dt.Date, s.dt.Time)})
	}
	return ev
}

func (d wireDriver) driver() Driver {
	return Driver{
		ID:         d.DriverID,
		Code:       d.Code,
		Number:     d.PermanentNumber,
		GivenName:  d.GivenName,
		FamilyName: d.FamilyName,
	}
}

func classifications(rows []wireResult) []Classification {
	out := make([]Classification, 0, len(rows))
	for _, r := range rows {
		c := Classification{
			PositionText: r.PositionText,
			Driver:       r.Driver.driver(),
			Team:         r.Constructor.Name,
			Grid:         atoi(r.Grid),
			Laps:         atoi(r.Laps),
			Status:       r.Status,
			Points:       atof(r.Points),
		}
		// positionText is "R", "D", "W" etc. for unclassified entries
		if _, err := strconv.Atoi(r.PositionText); err == nil {
			c.Position = atoi(r.Position)
		}
		if r.Time != nil {
			c.Time = r.Time.Time
		}
		out = append(out, c)
	}
	return out
}

func parseDateTime(date, clock string) time.Time {
	if date == "" {
		return time.Time{}
	}
	if clock == "" {
		t, _ := time.Parse(time.DateOnly, date)
		return t
	}
	t, err := time.Parse(time.RFC3339, date+"T"+clock)
	if err != nil {
		t, _ = time.Parse(time.DateOnly, date)
	}
	return t.UTC()
}

// ParseLapTime parses "1:23.456" or "45.123".
func ParseLapTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, fmt.Errorf("empty lap time")
	}
	var minutes int
	secPart := s
	if i := strings.LastIndex(s, ":"); i >= 0 {
		m, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("lap time %q: %w", s, err)
		}
		minutes, secPart = m, s[i+1:]
	}
	secs, err := strconv.ParseFloat(secPart, 64)
	if err != nil {
		return 0, fmt.Errorf("lap time %q: %w", s, err)
	}
	return time.Duration(minutes)*time.Minute + time.Duration(math.Round(secs*1000))*time.Millisecond, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
