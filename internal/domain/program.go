package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts used by the schedule feed for the date and start columns.
const (
	DateLayout  = "2006-01-02"
	StartLayout = "15:04"
)

// AiringWindow is how long after its start a program counts as airing.
// The feed carries no durations, so every program gets the same window.
const AiringWindow = time.Hour

// Program is one row of the broadcast schedule.
type Program struct {
	Channel string   `json:"channel"`
	Date    string   `json:"date"`
	Start   string   `json:"start"`
	Title   string   `json:"title"`
	Rating  *float64 `json:"rating"`
	Year    *int     `json:"year"`
	Season  string   `json:"season,omitempty"`
	Episode string   `json:"episode,omitempty"`
}

// MaxRating is the top of the audience rating scale, in percent.
const MaxRating = 100

// ParseRating reads an audience rating such as "85%", "85 %" or "72,5".
// Blank and "nan" mean no rating and return nil without error. Values that
// are not finite or fall outside [0, MaxRating] are a *ParseError.
func ParseRating(s string) (*float64, error) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return nil, &ParseError{Row: s, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > MaxRating {
		return nil, &ParseError{Row: s, Err: errors.New("rating out of range")}
	}
	return &v, nil
}

// SplitSeasonEpisode reads headings like "3/45 - Pilot" into their
// season and episode parts. Missing parts are empty.
func SplitSeasonEpisode(heading string) (season, episode string) {
	main, _, _ := strings.Cut(heading, "-")
	season, episode, _ = strings.Cut(strings.TrimSpace(main), "/")
	return strings.TrimSpace(season), strings.TrimSpace(episode)
}

// StartsAt combines the program's date and start columns in loc.
func (p Program) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+StartLayout, p.Date+" "+p.Start, loc)
	if err != nil {
		return time.Time{}, &ParseError{
			Row: fmt.Sprintf("%s/%s %s %s", p.Channel, p.Title, p.Date, p.Start),
			Err: err,
		}
	}
	return t, nil
}

// AiringAt reports whether ref falls inside [start, start+AiringWindow).
func (p Program) AiringAt(ref time.Time) (bool, error) {
	start, err := p.StartsAt(ref.Location())
	if err != nil {
		return false, err
	}
	return !ref.Before(start) && ref.Before(start.Add(AiringWindow)), nil
}
