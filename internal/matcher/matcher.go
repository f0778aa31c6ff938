// Package matcher picks the schedule rows that are airing at a given instant.
package matcher

import (
	"log/slog"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

type Matcher struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// FindAiringNow returns the programs whose airing window contains ref.
// Start times are interpreted in ref's location. Rows whose date or start
// cannot be parsed are logged and skipped.
func (m *Matcher) FindAiringNow(programs []domain.Program, ref time.Time) []domain.Program {
	airing := []domain.Program{}
	for _, p := range programs {
		ok, err := p.AiringAt(ref)
		if err != nil {
			m.logger.Warn("skipping program with unparsable start",
				"program_title", p.Title,
				"channel", p.Channel,
				"date", p.Date,
				"start", p.Start,
				"error", err,
			)
			continue
		}
		if ok {
			airing = append(airing, p)
		}
	}
	return airing
}
