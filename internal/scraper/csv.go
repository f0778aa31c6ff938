package scraper

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

var csvHeader = []string{"channel", "date", "start", "title", "rating", "year", "season", "episode"}

// WriteCSV writes programs in the schedule feed format.
func WriteCSV(w io.Writer, programs []domain.Program, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, p := range programs {
		rating, year := "", ""
		if p.Rating != nil {
			rating = strconv.FormatFloat(*p.Rating, 'f', -1, 64) + "%"
		}
		if p.Year != nil {
			year = strconv.Itoa(*p.Year)
		}
		if err := cw.Write([]string{p.Channel, p.Date, p.Start, p.Title, rating, year, p.Season, p.Episode}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AppendCSV appends programs to path, writing the header when the file is new.
func AppendCSV(path string, programs []domain.Program) error {
	_, err := os.Stat(path)
	isNew := errors.Is(err, fs.ErrNotExist)
	if err != nil && !isNew {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := WriteCSV(f, programs, isNew); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
