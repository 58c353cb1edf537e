package service_test

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/require"

	"jobmate/allocation-service/internal/allocation"
	"jobmate/allocation-service/internal/registry"
	"jobmate/allocation-service/internal/service"
)

func newService(t *testing.T, opts ...allocation.Option) (*service.Service, *fakeclock.FakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(
		[]allocation.Candidate{
			{ID: "a", Category: "nurse", Specialty: "icu", Score: 90},
			{ID: "b", Category: "nurse", Specialty: "icu", Score: 70},
		},
		[]allocation.Position{
			{ID: "icu", Category: "nurse", Specialty: "icu", InitialSlots: 1, AvailableSlots: 1},
			{ID: "er", Category: "nurse", Specialty: "icu", InitialSlots: 1, AvailableSlots: 1},
		},
		logger,
	)
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	n := 0
	ids := func() string { n++; return fmt.Sprintf("offer-%d", n) }
	svc := service.New(reg, logger,
		append([]allocation.Option{allocation.WithClock(clk), allocation.WithIDGenerator(ids)}, opts...)...)
	t.Cleanup(svc.Close)
	return svc, clk
}

func TestService_PreviewFollowsPreferenceEdits(t *testing.T) {
	svc, _ := newService(t)

	require.Equal(t, 0, svc.Statistics().Candidates.Responded)

	_, err := svc.TogglePreference("a", "icu")
	require.NoError(t, err)
	_, err = svc.TogglePreference("b", "icu")
	require.NoError(t, err)
	_, err = svc.TogglePreference("b", "er")
	require.NoError(t, err)

	st := svc.Statistics()
	require.Equal(t, 2, st.Candidates.Responded)
	require.False(t, svc.Started())
	require.Zero(t, svc.ExpireOverdue())

	c, err := svc.Candidate("b")
	require.NoError(t, err)
	require.Len(t, c.Preferences, 2)
}

func TestService_StartFreezesPreferences(t *testing.T) {
	svc, _ := newService(t)
	_, _ = svc.TogglePreference("a", "icu")
	_, _ = svc.TogglePreference("b", "icu")
	_, _ = svc.TogglePreference("b", "er")

	require.True(t, svc.Start())
	require.False(t, svc.Start())

	_, err := svc.TogglePreference("a", "er")
	require.ErrorIs(t, err, allocation.ErrInvalidTransition)

	snap := svc.Snapshot()
	require.Len(t, snap.Offers, 1)
	require.Equal(t, "a", snap.Offers[0].CandidateID)

	require.NoError(t, svc.Accept("offer-1"))
	c, err := svc.Candidate("a")
	require.NoError(t, err)
	require.Equal(t, allocation.CandidateHired, c.State)

	require.NoError(t, svc.Reject("offer-2"))
	require.ErrorIs(t, svc.Reject("offer-2"), allocation.ErrInvalidTransition)

	groups := svc.GroupStatistics()
	require.Len(t, groups, 1)
	require.Equal(t, allocation.RoundFinished, groups[0].State)
}

func TestService_StartWithoutPreferencesDisqualifiesEveryone(t *testing.T) {
	svc, _ := newService(t)
	require.True(t, svc.Start())

	st := svc.Statistics()
	require.Equal(t, 2, st.Candidates.Disqualified)
	require.Equal(t, 1, st.FinishedGroups)
}

func TestService_ExpireOverdue(t *testing.T) {
	svc, clk := newService(t, allocation.WithOfferWindow(time.Minute))
	_, _ = svc.TogglePreference("a", "icu")
	require.True(t, svc.Start())

	svc.Close()
	clk.Increment(time.Minute)
	require.Equal(t, 1, svc.ExpireOverdue())
	require.Equal(t, 1, svc.Statistics().Offers.Automatic)
}
