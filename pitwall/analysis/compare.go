package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

// DriverSummary identifies one side of a comparison.
type DriverSummary struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Team     string  `json:"team"`
	Points   float64 `json:"points"`
	Wins     int     `json:"wins"`
	Position int     `json:"position"`
}

// Tally counts rounds won by each driver.
type Tally struct {
	D1 int `json:"d1"`
	D2 int `json:"d2"`
}

// Average holds a per-driver mean, nil when there is no data.
type Average struct {
	D1 *float64 `json:"d1"`
	D2 *float64 `json:"d2"`
}

// RoundComparison is one round of the head-to-head.
type RoundComparison struct {
	Round   int    `json:"round"`
	Name    string `json:"name"`
	D1Race  *int   `json:"d1_race,omitempty"`
	D2Race  *int   `json:"d2_race,omitempty"`
	D1Quali *int   `json:"d1_quali,omitempty"`
	D2Quali *int   `json:"d2_quali,omitempty"`
}

// Comparison is the season head-to-head of two drivers.
type Comparison struct {
	Driver1         DriverSummary     `json:"driver1"`
	Driver2         DriverSummary     `json:"driver2"`
	QualifyingH2H   Tally             `json:"qualifying_h2h"`
	RaceH2H         Tally             `json:"race_h2h"`
	AvgRacePosition Average           `json:"avg_race_position"`
	RaceSpread      Average           `json:"race_position_stddev"`
	Rounds          []RoundComparison `json:"rounds"`
}

// Summarize turns a standings row into a DriverSummary, reporting the last
// team the driver drove for.
func Summarize(s upstream.DriverStanding) DriverSummary {
	team := "Unknown"
	if len(s.Teams) > 0 {
		team = s.Teams[len(s.Teams)-1]
	}
	return DriverSummary{
		Code:     s.Driver.Abbreviation(),
		Name:     s.Driver.FullName(),
		Team:     team,
		Points:   s.Points,
		Wins:     s.Wins,
		Position: s.Position,
	}
}

// CompareSeason builds the head-to-head from event payloads. Rounds are
// ordered by round number; a side is counted only when both drivers were
// classified in it.
func CompareSeason(d1, d2 DriverSummary, payloads []*enrichment.Payload) Comparison {
	sorted := make([]*enrichment.Payload, 0, len(payloads))
	for _, p := range payloads {
		if p != nil {
			sorted = append(sorted, p)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Round < sorted[j].Round })

	c := Comparison{Driver1: d1, Driver2: d2, Rounds: make([]RoundComparison, 0, len(sorted))}
	var pos1, pos2 []float64

	for _, p := range sorted {
		rc := RoundComparison{Round: p.Round, Name: p.Name}

		r1, r2 := racePosition(p, d1.Code), racePosition(p, d2.Code)
		if r1 != nil && r2 != nil {
			rc.D1Race, rc.D2Race = r1, r2
			pos1 = append(pos1, float64(*r1))
			pos2 = append(pos2, float64(*r2))
			tally(&c.RaceH2H, *r1, *r2)
		}

		q1, q2 := QualifyingPosition(p, d1.Code), QualifyingPosition(p, d2.Code)
		if q1 > 0 && q2 > 0 {
			rc.D1Quali, rc.D2Quali = &q1, &q2
			tally(&c.QualifyingH2H, q1, q2)
		}

		c.Rounds = append(c.Rounds, rc)
	}

	c.AvgRacePosition = Average{D1: mean(pos1), D2: mean(pos2)}
	c.RaceSpread = Average{D1: stddev(pos1), D2: stddev(pos2)}
	return c
}

func tally(t *Tally, a, b int) {
	switch {
	case a < b:
		t.D1++
	case b < a:
		t.D2++
	}
}

func racePosition(p *enrichment.Payload, code string) *int {
	for _, r := range p.RaceResults {
		if strings.EqualFold(r.Driver, code) {
			return r.Position
		}
	}
	return nil
}

// QualifyingPosition returns the driver's grid-deciding position: the rank
// within the last segment they reached. 0 when they did not set a time.
func QualifyingPosition(p *enrichment.Payload, code string) int {
	for _, seg := range []string{"Q3", "Q2", "Q1"} {
		for _, row := range p.Qualifying[seg] {
			if strings.EqualFold(row.Driver, code) {
				return row.Position
			}
		}
	}
	return 0
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	m := round1(stat.Mean(xs, nil))
	return &m
}

func stddev(xs []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	s := round1(stat.StdDev(xs, nil))
	return &s
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// LapDelta is the qualifying gap between two drivers in one segment.
type LapDelta struct {
	Segment string
	D1, D2  time.Duration
}

// QualifyingDeltas lines up the segment times both drivers set at one event,
// plus their best laps under "Best".
func QualifyingDeltas(p *enrichment.Payload, code1, code2 string) ([]LapDelta, error) {
	var out []LapDelta
	var best1, best2 time.Duration
	for _, seg := range []string{"Q1", "Q2", "Q3"} {
		t1, ok1 := segmentTime(p, seg, code1)
		t2, ok2 := segmentTime(p, seg, code2)
		if ok1 && (best1 == 0 || t1 < best1) {
			best1 = t1
		}
		if ok2 && (best2 == 0 || t2 < best2) {
			best2 = t2
		}
		if ok1 && ok2 {
			out = append(out, LapDelta{Segment: seg, D1: t1, D2: t2})
		}
	}
	if best1 == 0 || best2 == 0 {
		return nil, fmt.Errorf("%w: no qualifying lap for %s or %s", ErrDriverNotFound, code1, code2)
	}
	return append(out, LapDelta{Segment: "Best", D1: best1, D2: best2}), nil
}

func segmentTime(p *enrichment.Payload, seg, code string) (time.Duration, bool) {
	for _, row := range p.Qualifying[seg] {
		if strings.EqualFold(row.Driver, code) {
			d, err := upstream.ParseLapTime(row.Time)
			return d, err == nil
		}
	}
	return 0, false
}

// Gap is D1 minus D2; positive means driver 1 was slower.
func (d LapDelta) Gap() time.Duration {
	return d.D1 - d.D2
}

// FormatGap renders a signed seconds delta such as "+0.123s".
func FormatGap(d time.Duration) string {
	s := d.Seconds()
	if s > 0 {
		return fmt.Sprintf("+%.3fs", s)
	}
	return fmt.Sprintf("%.3fs", s)
}

// DeltasMarkdown renders qualifying deltas as a table.
func DeltasMarkdown(title, code1, code2 string, deltas []LapDelta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Qualifying: %s\n**%s vs %s**\n\n", title, code1, code2)
	fmt.Fprintf(&b, "| Session | %s | %s | Gap (%s to %s) | Status |\n", code1, code2, code1, code2)
	b.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
	for _, d := range deltas {
		status := "Faster"
		if d.Gap() > 0 {
			status = "Slower"
		} else if d.Gap() == 0 {
			status = "Level"
		}
		label := d.Segment
		if label == "Best" {
			label = "**BEST LAP**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", label, formatLap(d.D1), formatLap(d.D2), FormatGap(d.Gap()), status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLap(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}
