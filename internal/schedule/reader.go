// Package schedule loads the broadcast schedule feed.
//
// The feed is a CSV table with the header
//
//	channel,date,start,title,rating,year,season,episode
//
// produced by the scraper. Only channel, start and title are required.
// Extra columns are ignored.
package schedule

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// Reader returns the current schedule snapshot.
type Reader interface {
	ReadAll(ctx context.Context) ([]domain.Program, error)
}

var requiredColumns = []string{"channel", "start", "title"}

// ParseCSV decodes a schedule table. Rows missing channel, start or title
// are dropped with a warning. A missing required column fails the whole read.
func ParseCSV(r io.Reader, logger *slog.Logger) ([]domain.Program, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []domain.Program{}, nil
	}
	if err != nil {
		return nil, &domain.ParseError{Row: "header", Err: err}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		cols[name] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &domain.ParseError{Row: "header", Err: fmt.Errorf("missing column %q", c)}
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	programs := []domain.Program{}
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Warn("skipping unreadable schedule row", "line", line, "error", err)
			continue
		}

		p := domain.Program{
			Channel: field(rec, "channel"),
			Date:    field(rec, "date"),
			Start:   field(rec, "start"),
			Title:   field(rec, "title"),
			Year:    parseYear(field(rec, "year")),
			Season:  field(rec, "season"),
			Episode: field(rec, "episode"),
		}
		if p.Channel == "" || p.Start == "" || p.Title == "" {
			logger.Warn("dropping schedule row with missing fields",
				"line", line,
				"channel", p.Channel,
				"start", p.Start,
				"program_title", p.Title,
			)
			continue
		}

		rating, err := domain.ParseRating(field(rec, "rating"))
		if err != nil {
			logger.Warn("ignoring malformed rating", "line", line, "program_title", p.Title, "error", err)
		}
		p.Rating = rating
		programs = append(programs, p)
	}

	return programs, nil
}

// parseYear accepts "2019" and the "2019.0" form pandas writes for
// nullable integer columns.
func parseYear(s string) *int {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return nil
	}
	n := int(f)
	return &n
}
