package schedule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Priya8975/tv-monitor/internal/domain"
)

// FileReader reads the schedule from a local CSV file on every call.
type FileReader struct {
	path   string
	logger *slog.Logger
}

func NewFileReader(path string, logger *slog.Logger) *FileReader {
	return &FileReader{path: path, logger: logger}
}

func (r *FileReader) ReadAll(ctx context.Context) ([]domain.Program, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", domain.ErrScheduleUnavailable, r.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScheduleUnavailable, err)
	}
	defer f.Close()

	return ParseCSV(f, r.logger)
}
