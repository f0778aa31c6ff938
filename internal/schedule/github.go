package schedule

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/codeGROOVE-dev/retry"
)

// RepoReader fetches the schedule CSV through the GitHub contents API,
// which returns the file base64 encoded inside a JSON envelope.
type RepoReader struct {
	url      string
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func NewRepoReader(url string, client *http.Client, logger *slog.Logger) *RepoReader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RepoReader{
		url:      url,
		client:   client,
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
	}
}

// WithRetry overrides the attempt count and base delay.
func (r *RepoReader) WithRetry(attempts uint, delay time.Duration) *RepoReader {
	r.attempts = attempts
	r.delay = delay
	return r
}

func (r *RepoReader) ReadAll(ctx context.Context) ([]domain.Program, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/vnd.github+json")

			resp, err := r.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			body, err = io.ReadAll(io.LimitReader(resp.Body, 32<<20))
			return err
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Info("retrying schedule fetch", "attempt", n, "url", r.url, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScheduleUnavailable, err)
	}

	csvData, err := decodeContents(body)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(csvData), r.logger)
}

func decodeContents(body []byte) ([]byte, error) {
	var env contentsResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &domain.ParseError{Row: "contents envelope", Err: err}
	}
	if env.Encoding != "" && env.Encoding != "base64" {
		return nil, &domain.ParseError{Row: "contents envelope", Err: fmt.Errorf("unsupported encoding %q", env.Encoding)}
	}

	// GitHub wraps the base64 payload at 60 columns.
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(env.Content)
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, &domain.ParseError{Row: "contents payload", Err: err}
	}
	return data, nil
}
