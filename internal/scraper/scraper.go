// Package scraper fetches channel schedules from tv-program.sk and turns
// them into schedule rows.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://tv-program.sk"

// DefaultChannels are the channel slugs scraped when none are given.
var DefaultChannels = []string{"dajto", "prima-sk", "markiza-krimi"}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// HTTPStatusError is a non-200 response from the site.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// Scraper fetches and parses tv-program.sk pages.
type Scraper struct {
	client   *http.Client
	logger   *slog.Logger
	baseURL  string
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

// New creates a scraper that issues at most two requests per second.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:   client,
		logger:   logger,
		baseURL:  DefaultBaseURL,
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		attempts: 5,
		delay:    time.Second,
		now:      time.Now,
	}
}

func (s *Scraper) WithBaseURL(u string) *Scraper {
	s.baseURL = strings.TrimSuffix(u, "/")
	return s
}

// WithRateLimit replaces the request throttle. A zero interval disables it.
func (s *Scraper) WithRateLimit(every time.Duration) *Scraper {
	if every <= 0 {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
		return s
	}
	s.limiter = rate.NewLimiter(rate.Every(every), 1)
	return s
}

func (s *Scraper) WithRetry(attempts uint, delay time.Duration) *Scraper {
	s.attempts = attempts
	s.delay = delay
	return s
}

func (s *Scraper) WithClock(now func() time.Time) *Scraper {
	s.now = now
	return s
}

// listing is one row of a channel's programme list.
type listing struct {
	Start string
	Title string
	Href  string
}

// ScrapeChannel returns today's programmes for a channel slug. A detail
// page that cannot be fetched leaves that row without year and rating.
func (s *Scraper) ScrapeChannel(ctx context.Context, channel string) ([]domain.Program, error) {
	channelURL := s.baseURL + "/" + channel + "/"

	doc, err := s.fetch(ctx, channelURL)
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channel, err)
	}

	entries := parseListing(doc)
	s.logger.Info("channel page parsed", "channel", channel, "programmes", len(entries))

	date := s.now().Format(domain.DateLayout)
	programs := make([]domain.Program, 0, len(entries))
	for _, e := range entries {
		p := domain.Program{Channel: channel, Date: date, Start: e.Start, Title: e.Title}

		if e.Href != "" {
			detail, err := s.fetch(ctx, s.resolve(e.Href))
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger.Warn("failed to fetch programme detail", "title", e.Title, "error", err)
			} else {
				d, err := parseDetail(detail)
				if err != nil {
					s.logger.Warn("ignoring malformed rating", "title", e.Title, "error", err)
				}
				p.Year, p.Rating = d.Year, d.Rating
				p.Season, p.Episode = d.Season, d.Episode
			}
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// ScrapeAll scrapes every channel in order. Channels that fail are logged
// and skipped; the error is non-nil only when all of them failed.
func (s *Scraper) ScrapeAll(ctx context.Context, channels []string) ([]domain.Program, error) {
	var (
		all  []domain.Program
		errs []error
	)
	for _, ch := range channels {
		programs, err := s.ScrapeChannel(ctx, ch)
		if err != nil {
			s.logger.Error("failed to scrape channel", "channel", ch, "error", err)
			errs = append(errs, err)
			continue
		}
		all = append(all, programs...)
	}
	if len(channels) > 0 && len(errs) == len(channels) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (s *Scraper) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.baseURL + "/" + strings.TrimPrefix(href, "/")
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document

	err := retry.Do(
		func() error {
			if err := s.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "text/html,application/xhtml+xml")
			req.Header.Set("Accept-Language", "sk,en;q=0.8")

			start := time.Now()
			resp, err := s.client.Do(req)
			if err != nil {
				s.logger.Warn("HTTP request failed, will retry", "url", pageURL, "error", err)
				return err
			}
			defer resp.Body.Close()

			s.logger.Debug("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			if resp.StatusCode != http.StatusOK {
				return &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
			}

			doc, err = goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 8<<20))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("parse HTML: %w", err))
			}
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("retrying fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
		retry.RetryIf(func(err error) bool {
			// 4xx will not fix itself
			var se *HTTPStatusError
			if errors.As(err, &se) {
				return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
			}
			return true
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// parseListing pairs titles with start times in page order.
func parseListing(doc *goquery.Document) []listing {
	list := doc.Find("div.programme-list").First()
	times := list.Find("time.programme-list__time")
	titles := list.Find("a.programme-list__title")

	n := min(times.Length(), titles.Length())
	entries := make([]listing, 0, n)
	for i := range n {
		title := strings.TrimSpace(titles.Eq(i).Text())
		start := strings.TrimSpace(times.Eq(i).Text())
		if title == "" || start == "" {
			continue
		}
		href, _ := titles.Eq(i).Attr("href")
		entries = append(entries, listing{Start: start, Title: title, Href: href})
	}
	return entries
}

// detail is what a programme detail page adds to a listing row.
type detail struct {
	Year    *int
	Rating  *float64
	Season  string
	Episode string
}

// parseDetail extracts the production year, audience rating and episode
// numbering from a programme detail page. A rating that is present but
// unusable is returned as ratingErr and left nil.
func parseDetail(doc *goquery.Document) (d detail, ratingErr error) {
	doc.Find("div.adspace-program-detail span.text-muted").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if !yearPattern.MatchString(text) {
			return
		}
		if y, err := strconv.Atoi(text); err == nil {
			d.Year = &y
		}
	})

	heading := doc.Find("h1.page__title span.text-muted.fs-medium").First().Text()
	d.Season, d.Episode = domain.SplitSeasonEpisode(heading)

	d.Rating, ratingErr = domain.ParseRating(doc.Find("div.bg-warning div.h3.mb-0").First().Text())
	return d, ratingErr
}
