package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OpenF1 reads live session data from the OpenF1 API.
type OpenF1 struct {
	client  *Client
	baseURL string
}

// NewOpenF1 creates an OpenF1 source rooted at baseURL.
func NewOpenF1(client *Client, baseURL string) *OpenF1 {
	return &OpenF1{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// LiveSession is an OpenF1 session.
type LiveSession struct {
	SessionKey  int       `json:"session_key"`
	MeetingKey  int       `json:"meeting_key"`
	SessionName string    `json:"session_name"`
	SessionType string    `json:"session_type"`
	Location    string    `json:"location"`
	CountryName string    `json:"country_name"`
	DateStart   time.Time `json:"date_start"`
	Year        int       `json:"year"`
}

// Position is one driver line of a live positions snapshot.
type Position struct {
	Position int     `json:"position"`
	Driver   string  `json:"driver"`
	Gap      string  `json:"gap"`
	LastLap  *string `json:"last_lap"`
	Sector1  *string `json:"sector1"`
	Sector2  *string `json:"sector2"`
	Sector3  *string `json:"sector3"`
	Tyre     *string `json:"tyre"`
	PitStops *int    `json:"pit_stops"`
}

type wirePosition struct {
	DriverNumber *int            `json:"driver_number"`
	Position     int             `json:"position"`
	Date         string          `json:"date"`
	GapToLeader  json.RawMessage `json:"gap_to_leader"`
}

// RaceSessions lists the race sessions of season.
func (o *OpenF1) RaceSessions(ctx context.Context, season int) ([]LiveSession, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(season))
	q.Set("session_type", "Race")

	var sessions []LiveSession
	if err := o.client.GetJSON(ctx, o.baseURL+"/sessions?"+q.Encode(), &sessions); err != nil {
		return nil, fmt.Errorf("openf1 sessions %d: %w", season, err)
	}
	return sessions, nil
}

// Positions returns the latest position of every driver in the session,
// ordered by position.
func (o *OpenF1) Positions(ctx context.Context, sessionKey int) ([]Position, error) {
	q := url.Values{}
	q.Set("session_key", strconv.Itoa(sessionKey))
	// encodes as position%3C=20, i.e. position<=20
	q.Set("position<", "20")

	var raw []wirePosition
	if err := o.client.GetJSONFresh(ctx, o.baseURL+"/position?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("openf1 positions %d: %w", sessionKey, err)
	}
	return LatestPositions(raw), nil
}

// LatestPositions keeps the last entry per driver and sorts by position.
func LatestPositions(raw []wirePosition) []Position {
	latest := make(map[int]wirePosition)
	for _, e := range raw {
		if e.DriverNumber == nil {
			continue
		}
		latest[*e.DriverNumber] = e
	}

	out := make([]Position, 0, len(latest))
	for dn, e := range latest {
		out = append(out, Position{
			Position: e.Position,
			Driver:   strconv.Itoa(dn),
			Gap:      gapText(e.GapToLeader),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Driver < out[j].Driver
	})
	return out
}

func gapText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "LEADER"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "LEADER"
		}
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == 0 {
			return "LEADER"
		}
		return "+" + strconv.FormatFloat(f, 'f', 3, 64)
	}
	return "LEADER"
}
