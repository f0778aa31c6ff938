package worker

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/Priya8975/tv-monitor/internal/deliverylog"
	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/Priya8975/tv-monitor/internal/store"
)

type staticLookup map[string][]string

func (s staticLookup) Endpoints(title string) []string { return s[title] }

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.Close)
	return s
}

// hangingServer never answers until the client gives up.
func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newDispatcher(t *testing.T, rec Recorder, timeout time.Duration, workers int) *Dispatcher {
	t.Helper()
	logger := testLogger()
	d := NewDeliverer(rec, logger, WithTimeout(timeout))
	return NewDispatcher(NewPool(workers, d, logger), logger)
}

func TestDispatch_TimeoutDoesNotBlockOthers(t *testing.T) {
	const timeout = 500 * time.Millisecond

	fast1, fast2, slow := okServer(t), okServer(t), hangingServer(t)
	lookup := staticLookup{"Susedia": {slow.URL, fast1.URL, fast2.URL}}

	rec := &recordingRecorder{}
	d := newDispatcher(t, rec, timeout, 4)

	start := time.Now()
	records := d.Dispatch(context.Background(), []domain.Program{testProgram()}, lookup)

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	outcomes := map[string]domain.Outcome{}
	for _, r := range records {
		outcomes[r.WebhookEndpoint] = r.Outcome
	}
	if outcomes[fast1.URL] != domain.OutcomeSuccess || outcomes[fast2.URL] != domain.OutcomeSuccess {
		t.Errorf("expected both fast endpoints to succeed, got %v", outcomes)
	}
	if outcomes[slow.URL] != domain.OutcomeError {
		t.Errorf("expected timed-out endpoint to be error, got %s", outcomes[slow.URL])
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 3 {
		t.Fatalf("expected 3 appended records, got %d", len(rec.records))
	}
	for i, r := range rec.records {
		if r.Outcome == domain.OutcomeSuccess && rec.at[i].Sub(start) >= timeout {
			t.Errorf("success for %s was recorded after the slow endpoint's timeout", r.WebhookEndpoint)
		}
	}
}

func TestDispatch_MultiplePrograms(t *testing.T) {
	a, b := okServer(t), okServer(t)
	lookup := staticLookup{
		"Susedia":   {a.URL},
		"Krimi":     {a.URL, b.URL},
		"Nobody":    nil,
		"Unrelated": {b.URL},
	}
	programs := []domain.Program{
		testProgram(),
		{Channel: "Markiza Krimi", Date: "2025-01-10", Start: "20:10", Title: "Krimi"},
		{Channel: "Dajto", Date: "2025-01-10", Start: "20:15", Title: "Nobody"},
	}

	rec := &recordingRecorder{}
	records := newDispatcher(t, rec, time.Second, 2).Dispatch(context.Background(), programs, lookup)

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	var titles []string
	for _, r := range records {
		titles = append(titles, r.ProgramTitle)
	}
	sort.Strings(titles)
	want := []string{"Krimi", "Krimi", "Susedia"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected titles %v, got %v", want, titles)
		}
	}
}

func TestDispatch_NoSubscribers(t *testing.T) {
	rec := &recordingRecorder{}
	records := newDispatcher(t, rec, time.Second, 2).Dispatch(context.Background(), []domain.Program{testProgram()}, staticLookup{})

	if len(records) != 0 || len(rec.snapshot()) != 0 {
		t.Errorf("expected no deliveries, got %d records", len(records))
	}
}

func TestDispatch_SingleWorkerStillDeliversAll(t *testing.T) {
	a := okServer(t)
	lookup := staticLookup{"Susedia": {a.URL + "/1", a.URL + "/2", a.URL + "/3", a.URL + "/4"}}

	records := newDispatcher(t, &recordingRecorder{}, time.Second, 1).Dispatch(context.Background(), []domain.Program{testProgram()}, lookup)

	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for i, r := range records {
		if r.WebhookEndpoint != lookup["Susedia"][i] {
			t.Errorf("record %d: expected endpoint %s, got %s", i, lookup["Susedia"][i], r.WebhookEndpoint)
		}
	}
}

func TestDispatch_PersistsToDeliveryLog(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	s, err := store.NewSQLite(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	ok := okServer(t)

	dl := deliverylog.New(s, logger)
	d := newDispatcher(t, dl, time.Second, 2)
	d.Dispatch(context.Background(), []domain.Program{testProgram()}, staticLookup{"Susedia": {ok.URL, failing.URL}})

	entries, err := dl.RecentEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}

	stats, err := dl.Stats(context.Background())
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.SuccessCount != 1 || stats.FailedCount != 1 {
		t.Errorf("expected 1 success and 1 failed, got %+v", stats)
	}
}
