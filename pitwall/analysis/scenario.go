// Package analysis derives championship and head-to-head figures from
// standings and cached event payloads.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// Points ceilings per weekend: win plus fastest lap, and with a sprint win on top.
const (
	MaxPointsPerRace          = 26
	MaxPointsPerSprintWeekend = 34
)

// Title status values.
const (
	StatusLeading      = "LEADING"
	StatusChampion     = "CHAMPION"
	StatusAlive        = "Alive"
	StatusNeedsSprints = "Needs sprints"
	StatusEliminated   = "ELIMINATED"
)

// ErrDriverNotFound is returned when no standings row matches the query.
var ErrDriverNotFound = errors.New("analysis: driver not found")

// RoundStandings is the championship table after one round.
type RoundStandings struct {
	Round     int
	RaceName  string
	Standings []upstream.DriverStanding // ordered, leader first
}

// ScenarioRow is the title picture for one driver after one round.
type ScenarioRow struct {
	Round        int
	RaceName     string
	DriverPoints float64
	DriverPos    int
	Leader       string
	LeaderPoints float64
	Gap          float64
	Remaining    int
	Needed       float64 // points per remaining race; 0 when not applicable
	Status       string
}

// Scenario is the season-long title progression of one driver.
type Scenario struct {
	Season int
	Query  string
	Rows   []ScenarioRow
}

// TitleScenario computes, after every round, how many points per remaining
// race the driver matching query needed to catch the leader. Rounds where
// the driver is absent from the standings are skipped.
func TitleScenario(season int, query string, totalRounds int, rounds []RoundStandings) (Scenario, error) {
	sc := Scenario{Season: season, Query: query}
	for _, rs := range rounds {
		if len(rs.Standings) == 0 {
			break
		}
		row, ok := FindStanding(rs.Standings, query)
		if !ok {
			continue
		}

		leader := rs.Standings[0]
		r := ScenarioRow{
			Round:        rs.Round,
			RaceName:     strings.ReplaceAll(rs.RaceName, "Grand Prix", "GP"),
			DriverPoints: row.Points,
			DriverPos:    row.Position,
			Leader:       shortName(leader.Driver),
			LeaderPoints: leader.Points,
			Gap:          leader.Points - row.Points,
			Remaining:    totalRounds - rs.Round,
		}
		r.Status, r.Needed = titleStatus(r)
		sc.Rows = append(sc.Rows, r)
	}
	if len(sc.Rows) == 0 {
		return sc, fmt.Errorf("%w: %q in the %d standings", ErrDriverNotFound, query, season)
	}
	return sc, nil
}

func titleStatus(r ScenarioRow) (string, float64) {
	switch {
	case r.DriverPos == 1:
		return StatusLeading, 0
	case r.Remaining <= 0:
		if r.Gap <= 0 {
			return StatusChampion, 0
		}
		return fmt.Sprintf("P%d FINAL", r.DriverPos), 0
	}

	perRace := r.Gap / float64(r.Remaining)
	switch {
	case perRace <= MaxPointsPerRace:
		return StatusAlive, perRace
	case perRace <= MaxPointsPerSprintWeekend:
		return StatusNeedsSprints, perRace
	default:
		return StatusEliminated, perRace
	}
}

// Markdown renders the scenario as a table with a footer on the points ceilings.
func (s Scenario) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Championship Scenario: %s (%d)\n\n", s.Query, s.Season)
	b.WriteString("| After | Race | Driver Pts | Leader | Leader Pts | Gap | Remaining | Pts/Race Needed | Status |\n")
	b.WriteString("| :---- | :--- | :--------- | :----- | :--------- | :-- | :-------- | :-------------- | :----- |\n")
	for _, r := range s.Rows {
		needed := "-"
		if r.Needed > 0 || r.Status == StatusAlive {
			needed = fmt.Sprintf("%.1f", r.Needed)
		}
		fmt.Fprintf(&b, "| R%d | %s | %.0f | %s | %.0f | %.0f | %d | %s | %s |\n",
			r.Round, r.RaceName, r.DriverPoints, r.Leader, r.LeaderPoints, r.Gap, r.Remaining, needed, r.Status)
	}
	fmt.Fprintf(&b, "\n*Max possible points per race: %d (win + FL). Sprint weekends allow up to %d.*",
		MaxPointsPerRace, MaxPointsPerSprintWeekend)
	return b.String()
}

// FindStanding returns the first standings row whose driver matches query by
// code or name.
func FindStanding(standings []upstream.DriverStanding, query string) (upstream.DriverStanding, bool) {
	for _, s := range standings {
		if s.Driver.Matches(query) {
			return s, true
		}
	}
	return upstream.DriverStanding{}, false
}

func shortName(d upstream.Driver) string {
	if d.GivenName == "" {
		return d.FamilyName
	}
	return string([]rune(d.GivenName)[0]) + ". " + d.FamilyName
}
