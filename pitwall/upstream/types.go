package upstream

import (
	"strings"
	"time"
)

// Session names as they appear in Event.Sessions.
const (
	SessionPractice1        = "Practice 1"
	SessionPractice2        = "Practice 2"
	SessionPractice3        = "Practice 3"
	SessionQualifying       = "Qualifying"
	SessionSprintQualifying = "Sprint Qualifying"
	SessionSprint           = "Sprint"
	SessionRace             = "Race"
)

// Event status values.
const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"
	StatusUpcoming   = "upcoming"

	// DefaultCompletionBuffer is how long after the race start an event counts as concluded.
	DefaultCompletionBuffer = 3 * time.Hour
)

// Session is one timed session of a race weekend.
type Session struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
}

// Circuit identifies the venue of an event.
type Circuit struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Locality string `json:"locality"`
	Country  string `json:"country"`
}

// Location renders "Locality, Country".
func (c Circuit) Location() string {
	if c.Country == "" {
		return c.Locality
	}
	return c.Locality + ", " + c.Country
}

// Event is one round of a season.
type Event struct {
	Season   int       `json:"season"`
	Round    int       `json:"round"`
	Name     string    `json:"name"`
	Circuit  Circuit   `json:"circuit"`
	Date     time.Time `json:"date"`
	Sessions []Session `json:"sessions"`
}

// IsSprint reports whether the weekend carries a sprint race.
func (e Event) IsSprint() bool {
	_, ok := e.Session(SessionSprint)
	return ok
}

// Session returns the named session.
func (e Event) Session(name string) (Session, bool) {
	for _, s := range e.Sessions {
		if s.Name == name {
			return s, true
		}
	}
	return Session{}, false
}

// ConcludesAt returns the start of the concluding session: the race, or the
// latest timed session when the race time is unknown.
func (e Event) ConcludesAt() time.Time {
	if s, ok := e.Session(SessionRace); ok {
		return s.Start
	}
	last := e.Date
	for _, s := range e.Sessions {
		if s.Start.After(last) {
			last = s.Start
		}
	}
	return last
}

// Concluded reports whether the concluding session ended more than buffer
// before now.
func (e Event) Concluded(now time.Time, buffer time.Duration) bool {
	end := e.ConcludesAt()
	return !end.IsZero() && now.After(end.Add(buffer))
}

// Status classifies the event relative to now as completed, in_progress or upcoming.
func (e Event) Status(now time.Time) string {
	if e.Concluded(now, DefaultCompletionBuffer) {
		return StatusCompleted
	}
	first := e.Date
	for _, s := range e.Sessions {
		if first.IsZero() || s.Start.Before(first) {
			first = s.Start
		}
	}
	if !first.IsZero() && !now.Before(first) {
		return StatusInProgress
	}
	return StatusUpcoming
}

// ShortName replaces "Grand Prix" with "GP".
func (e Event) ShortName() string {
	return strings.ReplaceAll(e.Name, "Grand Prix", "GP")
}

// Driver is a championship entrant.
type Driver struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Number     string `json:"number,omitempty"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// FullName renders "Given Family".
func (d Driver) FullName() string {
	return strings.TrimSpace(d.GivenName + " " + d.FamilyName)
}

// Abbreviation returns the three-letter code, falling back to the family name.
func (d Driver) Abbreviation() string {
	if d.Code != "" {
		return d.Code
	}
	name := strings.ToUpper(d.FamilyName)
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

// Matches reports a case-insensitive match on the code or a substring of
// either name.
func (d Driver) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return q == strings.ToLower(d.Code) ||
		strings.Contains(strings.ToLower(d.FamilyName), q) ||
		strings.Contains(strings.ToLower(d.GivenName), q)
}

// Classification is one line of a race or sprint result.
type Classification struct {
	Position     int     `json:"position"` // 0 when not classified
	PositionText string  `json:"position_text"`
	Driver       Driver  `json:"driver"`
	Team         string  `json:"team"`
	Grid         int     `json:"grid"` // 0 for a pit-lane start
	Laps         int     `json:"laps"`
	Status       string  `json:"status"`
	Time         string  `json:"time,omitempty"`
	Points       float64 `json:"points"`
}

// Finished reports a classified finish on the lead lap.
func (c Classification) Finished() bool {
	return c.Status == "Finished"
}

// Lapped reports a "+N Lap(s)" status.
func (c Classification) Lapped() bool {
	return strings.Contains(c.Status, "Lap")
}

// QualifyingEntry is one driver's qualifying session. Empty segment times
// mean the driver did not take part in that segment.
type QualifyingEntry struct {
	Position int    `json:"position"`
	Driver   Driver `json:"driver"`
	Team     string `json:"team"`
	Q1       string `json:"q1,omitempty"`
	Q2       string `json:"q2,omitempty"`
	Q3       string `json:"q3,omitempty"`
}

// Segment returns the time for "Q1", "Q2" or "Q3".
func (q QualifyingEntry) Segment(name string) string {
	switch name {
	case "Q1":
		return q.Q1
	case "Q2":
		return q.Q2
	case "Q3":
		return q.Q3
	}
	return ""
}

// BestLap returns the fastest of the segment times.
func (q QualifyingEntry) BestLap() (time.Duration, bool) {
	var best time.Duration
	found := false
	for _, t := range []string{q.Q1, q.Q2, q.Q3} {
		d, err := ParseLapTime(t)
		if err != nil {
			continue
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// DriverStanding is one line of the drivers' championship.
type DriverStanding struct {
	Position int      `json:"position"`
	Driver   Driver   `json:"driver"`
	Teams    []string `json:"teams"`
	Points   float64  `json:"points"`
	Wins     int      `json:"wins"`
}

// ConstructorStanding is one line of the constructors' championship.
type ConstructorStanding struct {
	Position int     `json:"position"`
	Team     string  `json:"team"`
	Points   float64 `json:"points"`
	Wins     int     `json:"wins"`
}

// Constructor is a championship team entry.
type Constructor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}
