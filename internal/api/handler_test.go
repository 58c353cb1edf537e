package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"

	"jobmate/allocation-service/internal/allocation"
	"jobmate/allocation-service/internal/api"
	"jobmate/allocation-service/internal/events"
	"jobmate/allocation-service/internal/registry"
	"jobmate/allocation-service/internal/service"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	mux *http.ServeMux
	hub *events.Hub
	svc *service.Service
}

func newFixture(t *testing.T, ratePerSec float64) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(
		[]allocation.Candidate{
			{ID: "a", Name: "Anna", Category: "nurse", Specialty: "icu", Score: 90,
				Preferences: []allocation.Preference{{PositionID: "icu", Rank: 1}}},
			{ID: "b", Name: "Bru", Category: "nurse", Specialty: "icu", Score: 70},
		},
		[]allocation.Position{
			{ID: "icu", Title: "ICU nurse", Category: "nurse", Specialty: "icu", InitialSlots: 1, AvailableSlots: 1},
			{ID: "er", Title: "ER nurse", Category: "nurse", Specialty: "icu", InitialSlots: 1, AvailableSlots: 1},
		},
		logger,
	)
	clk := fakeclock.NewFakeClock(now)
	hub := events.NewHub()
	n := 0
	svc := service.New(reg, logger,
		allocation.WithClock(clk),
		allocation.WithPublisher(hub),
		allocation.WithIDGenerator(func() string { n++; return fmt.Sprintf("offer-%d", n) }),
	)
	t.Cleanup(svc.Close)

	mux := http.NewServeMux()
	api.NewHandler(svc, hub, ratePerSec, clk, logger).RegisterRoutes(mux)
	return &fixture{mux: mux, hub: hub, svc: svc}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

// ── Allocation routes ──────────────────────────────────────────────────────

func TestStartAndOffers(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.do(http.MethodPost, "/allocation/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Started    bool                  `json:"started"`
		Statistics allocation.Statistics `json:"statistics"`
	}](t, rec)
	require.True(t, body.Started)
	require.Equal(t, 1, body.Statistics.Offers.Pending)

	rec = f.do(http.MethodPost, "/allocation/start", "")
	require.False(t, decode[map[string]any](t, rec)["started"].(bool))

	snap := decode[allocation.Snapshot](t, f.do(http.MethodGet, "/allocation/snapshot", ""))
	require.Len(t, snap.Offers, 1)
	require.Equal(t, "a", snap.Offers[0].CandidateID)

	rec = f.do(http.MethodPost, "/offers/offer-1/accept", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, allocation.OfferAccepted, decode[allocation.Offer](t, rec).State)

	rec = f.do(http.MethodPost, "/offers/offer-1/reject", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPost, "/offers/missing/accept", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	groups := decode[[]allocation.GroupStatistics](t, f.do(http.MethodGet, "/allocation/groups", ""))
	require.Len(t, groups, 1)
	require.Equal(t, allocation.RoundFinished, groups[0].State)

	st := decode[allocation.Statistics](t, f.do(http.MethodGet, "/allocation/statistics", ""))
	require.Equal(t, 100, st.AcceptanceRate)
	require.Equal(t, 1, st.Candidates.Disqualified)
}

func TestRouting(t *testing.T) {
	f := newFixture(t, 100)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/allocation/start", http.StatusMethodNotAllowed},
		{http.MethodPost, "/allocation/snapshot", http.StatusMethodNotAllowed},
		{http.MethodGet, "/allocation/nope", http.StatusNotFound},
		{http.MethodGet, "/offers/offer-1/accept", http.StatusMethodNotAllowed},
		{http.MethodPost, "/offers/offer-1/cancel", http.StatusNotFound},
		{http.MethodPost, "/offers/offer-1", http.StatusNotFound},
		{http.MethodGet, "/candidates/", http.StatusNotFound},
		{http.MethodGet, "/candidates/a/unknown", http.StatusNotFound},
		{http.MethodDelete, "/candidates/a", http.StatusMethodNotAllowed},
		{http.MethodGet, "/candidates/a/preferences/icu", http.StatusMethodNotAllowed},
		{http.MethodGet, "/candidates/ghost", http.StatusNotFound},
	}
	for _, c := range cases {
		rec := f.do(c.method, c.path, "")
		require.Equal(t, c.want, rec.Code, "%s %s", c.method, c.path)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

// ── Candidate routes ───────────────────────────────────────────────────────

func TestPreferenceEditing(t *testing.T) {
	f := newFixture(t, 100)

	eligible := decode[[]allocation.Position](t, f.do(http.MethodGet, "/candidates/b/eligible", ""))
	require.Len(t, eligible, 2)

	rec := f.do(http.MethodPost, "/candidates/b/preferences/icu", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/candidates/b/preferences/er", "")
	c := decode[allocation.Candidate](t, rec)
	require.Equal(t, allocation.CandidateResponded, c.State)
	require.Len(t, c.Preferences, 2)

	rec = f.do(http.MethodPut, "/candidates/b/preferences", `{"positionIds":["er","icu"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[allocation.Candidate](t, rec)
	require.Equal(t, "er", c.Preferences[0].PositionID)

	rec = f.do(http.MethodPut, "/candidates/b/preferences", `{"positionIds":["er"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPut, "/candidates/b/preferences", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(http.MethodPost, "/candidates/b/preferences/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	c = decode[allocation.Candidate](t, f.do(http.MethodGet, "/candidates/b", ""))
	require.Equal(t, "er", c.Preferences[0].PositionID)

	f.do(http.MethodPost, "/allocation/start", "")
	rec = f.do(http.MethodPost, "/candidates/b/preferences/icu", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	c = decode[allocation.Candidate](t, f.do(http.MethodGet, "/candidates/b", ""))
	require.Equal(t, allocation.CandidateOffered, c.State)
}

// ── Report ─────────────────────────────────────────────────────────────────

func TestReport(t *testing.T) {
	f := newFixture(t, 100)
	f.do(http.MethodPost, "/allocation/start", "")

	rec := f.do(http.MethodGet, "/allocation/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "allocation_2026-03-02.txt")
	require.Contains(t, rec.Body.String(), "Total offers: 1")
	require.Contains(t, rec.Body.String(), "Anna - ICU nurse - pending")
}

// ── Rate limiting ──────────────────────────────────────────────────────────

func TestRateLimit_MutatingRoutesOnly(t *testing.T) {
	f := newFixture(t, 1)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/candidates/b/preferences/icu", "").Code)
	rec := f.do(http.MethodPost, "/candidates/b/preferences/er", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))

	for n := 0; n < 5; n++ {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/allocation/statistics", "").Code)
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/candidates/b/preferences/er", nil)
	req.Header.Set("x-user-id", "someone-else")
	other := httptest.NewRecorder()
	f.mux.ServeHTTP(other, req)
	require.Equal(t, http.StatusOK, other.Code)
}

// ── Server-sent events ─────────────────────────────────────────────────────

func TestEvents_StreamsHubMessages(t *testing.T) {
	f := newFixture(t, 100)
	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	nextData := func() string {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				return data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return ""
	}

	require.Contains(t, nextData(), `"type":"ping"`)
	require.Equal(t, 1, f.hub.Subscribers())

	go f.svc.Start()
	require.Contains(t, nextData(), events.TypeGroupStateChanged)
	require.Contains(t, nextData(), events.TypeOfferCreated)
}
