// Command scraper appends today's tv-program.sk listings to the schedule CSV.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/tv-monitor/internal/scraper"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli"
)

var (
	outPath         string
	baseURL         string
	cronSpec        string
	requestInterval time.Duration
	timeout         time.Duration
)

var flags = []cli.Flag{
	cli.StringFlag{
		Name:        "out, o",
		Usage:       "CSV file to append rows to",
		EnvVar:      "SCHEDULE_CSV",
		Value:       "shows.csv",
		Destination: &outPath,
	},
	cli.StringSliceFlag{
		Name:  "channel, c",
		Usage: "channel slug to scrape (repeatable, default: dajto, prima-sk, markiza-krimi)",
	},
	cli.StringFlag{
		Name:        "base-url",
		Usage:       "site to scrape",
		Value:       scraper.DefaultBaseURL,
		Destination: &baseURL,
	},
	cli.StringFlag{
		Name:        "cron",
		Usage:       "keep running and scrape on this cron schedule (e.g. \"0 5 * * *\")",
		EnvVar:      "SCRAPE_CRON",
		Destination: &cronSpec,
	},
	cli.DurationFlag{
		Name:        "request-interval",
		Usage:       "minimum delay between requests to the site",
		Value:       500 * time.Millisecond,
		Destination: &requestInterval,
	},
	cli.DurationFlag{
		Name:        "timeout",
		Usage:       "per-request HTTP timeout",
		Value:       30 * time.Second,
		Destination: &timeout,
	},
}

func main() {
	app := cli.App{
		Name:     "scraper",
		HelpName: "scraper",
		Usage:    "collect TV listings into the schedule CSV",
		Flags:    flags,
		Action:   run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "scraper: %s\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	list := c.StringSlice("channel")
	if len(list) == 0 {
		list = scraper.DefaultChannels
	}

	s := scraper.New(&http.Client{Timeout: timeout}, logger).
		WithBaseURL(baseURL).
		WithRateLimit(requestInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scrapeOnce := func() error {
		programs, err := s.ScrapeAll(ctx, list)
		if err != nil {
			return err
		}
		if err := scraper.AppendCSV(outPath, programs); err != nil {
			return err
		}
		logger.Info("schedule updated", "path", outPath, "rows", len(programs), "channels", len(list))
		return nil
	}

	if cronSpec == "" {
		return scrapeOnce()
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cronSpec, func() {
		if err := scrapeOnce(); err != nil {
			logger.Error("scheduled scrape failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", cronSpec, err)
	}

	logger.Info("scraper scheduled", "cron", cronSpec, "path", outPath)
	sched.Start()
	<-ctx.Done()

	logger.Info("stopping scraper")
	<-sched.Stop().Done()
	return nil
}
