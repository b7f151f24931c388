package enrichment

import (
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/pitwall/pitwall/circuits"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// Sub-fetch names used in Payload.Failures.
const (
	FetchRace             = "race"
	FetchQualifying       = "qualifying"
	FetchSprint           = "sprint"
	FetchSprintQualifying = "sprint_qualifying"
)

// Payload is the assembled data of one event. A cached payload is shared by
// every reader and must not be modified.
type Payload struct {
	Season   int                  `json:"season"`
	Round    int                  `json:"round"`
	Name     string               `json:"name"`
	Location string               `json:"location"`
	Date     time.Time            `json:"date"`
	Sessions map[string]time.Time `json:"sessions"`
	Circuit  *circuits.Info       `json:"circuit"`

	RaceResults      []ResultRow                `json:"race_results"`
	Qualifying       map[string][]QualifyingRow `json:"qualifying"`
	Podium           []ResultRow                `json:"podium"`
	IsSprint         bool                       `json:"is_sprint"`
	SprintResults    []ResultRow                `json:"sprint_results"`
	SprintQualifying map[string][]QualifyingRow `json:"sprint_qualifying"`

	HasRaceResults bool `json:"has_race_results"`
	HasQualifying  bool `json:"has_qualifying"`

	ConcludesAt time.Time         `json:"concludes_at"`
	Failures    map[string]string `json:"failures,omitempty"`

	// ResultsAttempted is set by the loader once it went past the
	// concluded check and requested the session results.
	ResultsAttempted bool `json:"results_attempted"`
}

// ResultRow is one line of a race or sprint classification.
type ResultRow struct {
	Position *int    `json:"position"`
	Driver   string  `json:"driver"`
	FullName string  `json:"full_name"`
	Team     string  `json:"team"`
	Grid     *int    `json:"grid"`
	Time     string  `json:"time"`
	Points   float64 `json:"points"`
	Status   string  `json:"status"`
}

// QualifyingRow is one line of a qualifying segment.
type QualifyingRow struct {
	Position int    `json:"position"`
	Driver   string `json:"driver"`
	FullName string `json:"full_name"`
	Team     string `json:"team"`
	Time     string `json:"time"`
}

// HasIdentity reports whether the payload carries venue info, the minimum
// for it to be cached.
func (p *Payload) HasIdentity() bool {
	return p != nil && p.Circuit != nil
}

// Concluded reports whether the event ended more than buffer before now.
func (p *Payload) Concluded(now time.Time, buffer time.Duration) bool {
	return p != nil && !p.ConcludesAt.IsZero() && now.After(p.ConcludesAt.Add(buffer))
}

// Driver finds a race result row by code or name substring.
func (p *Payload) Driver(query string) (ResultRow, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, r := range p.RaceResults {
		if strings.ToLower(r.Driver) == q || strings.Contains(strings.ToLower(r.FullName), q) {
			return r, true
		}
	}
	return ResultRow{}, false
}

func newPayload(ev upstream.Event) *Payload {
	p := &Payload{
		Season:      ev.Season,
		Round:       ev.Round,
		Name:        ev.Name,
		Location:    ev.Circuit.Location(),
		Date:        ev.Date,
		Sessions:    make(map[string]time.Time, len(ev.Sessions)),
		IsSprint:    ev.IsSprint(),
		ConcludesAt: ev.ConcludesAt(),
	}
	for _, s := range ev.Sessions {
		p.Sessions[s.Name] = s.Start
	}
	if info, ok := circuits.Lookup(p.Location); ok {
		p.Circuit = &info
	}
	return p
}

func (p *Payload) fail(fetch string, err error) {
	if p.Failures == nil {
		p.Failures = make(map[string]string)
	}
	p.Failures[fetch] = err.Error()
}

// resultRows converts a classification into rows sorted by position with
// unclassified entries last.
func resultRows(rows []upstream.Classification) []ResultRow {
	out := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		row := ResultRow{
			Driver:   r.Driver.Abbreviation(),
			FullName: r.Driver.FullName(),
			Team:     r.Team,
			Time:     resultTime(r),
			Points:   r.Points,
			Status:   r.Status,
		}
		if r.Position > 0 {
			pos := r.Position
			row.Position = &pos
		}
		if r.Grid > 0 {
			grid := r.Grid
			row.Grid = &grid
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return positionOrder(out[i].Position) < positionOrder(out[j].Position)
	})
	return out
}

func resultTime(r upstream.Classification) string {
	switch {
	case r.Finished():
		return r.Time
	case r.Lapped():
		return r.Status
	default:
		return "DNF - " + r.Status
	}
}

func positionOrder(p *int) int {
	if p == nil {
		return 1 << 30
	}
	return *p
}

func podium(rows []ResultRow) []ResultRow {
	var out []ResultRow
	for _, r := range rows {
		if r.Position != nil && *r.Position <= 3 {
			out = append(out, r)
		}
	}
	return out
}

// qualifyingSegments splits entries into Q1/Q2/Q3 tables, each ordered by
// that segment's lap time. Segments nobody ran are omitted.
func qualifyingSegments(entries []upstream.QualifyingEntry) map[string][]QualifyingRow {
	segments := make(map[string][]QualifyingRow)
	for _, seg := range []string{"Q1", "Q2", "Q3"} {
		type timed struct {
			entry upstream.QualifyingEntry
			lap   time.Duration
		}
		var ran []timed
		for _, e := range entries {
			lap, err := upstream.ParseLapTime(e.Segment(seg))
			if err != nil {
				continue
			}
			ran = append(ran, timed{e, lap})
		}
		if len(ran) == 0 {
			continue
		}
		sort.SliceStable(ran, func(i, j int) bool { return ran[i].lap < ran[j].lap })

		rows := make([]QualifyingRow, 0, len(ran))
		for i, t := range ran {
			rows = append(rows, QualifyingRow{
				Position: i + 1,
				Driver:   t.entry.Driver.Abbreviation(),
				FullName: t.entry.Driver.FullName(),
				Team:     t.entry.Team,
				Time:     t.entry.Segment(seg),
			})
		}
		segments[seg] = rows
	}
	if len(segments) == 0 {
		return nil
	}
	return segments
}
