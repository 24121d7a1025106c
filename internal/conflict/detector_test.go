package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora/event-scheduler/internal/model"
	"github.com/planora/event-scheduler/internal/timewindow"
)

// fakeSource returns all events unfiltered, exercising the detector's
// own overlap logic.
type fakeSource struct {
	events []model.Event
	err    error
}

func (f *fakeSource) ListOverlapping(_ context.Context, _, _ time.Time, _ uint64) ([]model.Event, error) {
	return f.events, f.err
}

func utc(h, m int) time.Time {
	return time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
}

func storedEvent(id uint64, start, end time.Time) model.Event {
	return model.Event{
		ID:       id,
		Title:    "stored",
		StartsAt: start,
		EndsAt:   end,
		Timezone: "UTC",
		Status:   model.StatusUpcoming,
	}
}

func TestFindConflictsOverlappingCandidate(t *testing.T) {
	src := &fakeSource{events: []model.Event{storedEvent(1, utc(10, 0), utc(12, 0))}}
	d := NewDetector(src)

	// Candidate 11:00-13:00 overlaps the stored 10:00-12:00 event.
	w, err := timewindow.New(utc(11, 0), utc(13, 0))
	require.NoError(t, err)
	got, err := d.FindConflicts(context.Background(), w, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].ID)

	// Candidate 12:00-13:00 touches but does not overlap.
	w, err = timewindow.New(utc(12, 0), utc(13, 0))
	require.NoError(t, err)
	got, err = d.FindConflicts(context.Background(), w, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflictsExcludesSelf(t *testing.T) {
	src := &fakeSource{events: []model.Event{
		storedEvent(1, utc(10, 0), utc(12, 0)),
		storedEvent(2, utc(11, 0), utc(13, 0)),
	}}
	d := NewDetector(src)

	w, err := timewindow.New(utc(10, 30), utc(11, 30))
	require.NoError(t, err)
	got, err := d.FindConflicts(context.Background(), w, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].ID)
}

func TestFindConflictsSkipsCancelled(t *testing.T) {
	cancelled := storedEvent(1, utc(10, 0), utc(12, 0))
	cancelled.Status = model.StatusCancelled
	d := NewDetector(&fakeSource{events: []model.Event{cancelled}})

	w, err := timewindow.New(utc(10, 0), utc(12, 0))
	require.NoError(t, err)
	got, err := d.FindConflicts(context.Background(), w, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflictsRawPointMode(t *testing.T) {
	src := &fakeSource{events: []model.Event{
		storedEvent(1, utc(11, 0), utc(12, 0)), // contains the probe instant
		storedEvent(2, utc(10, 0), utc(12, 30)),
	}}
	d := NewDetector(src)

	got, err := d.FindConflictsRaw(context.Background(), "2025-06-01 11:30", "", "UTC", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// An event ending exactly at the probe instant does not conflict.
	src.events = []model.Event{storedEvent(3, utc(10, 0), utc(11, 30))}
	got, err = d.FindConflictsRaw(context.Background(), "2025-06-01 11:30", "", "UTC", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflictsRawTimezoneConversion(t *testing.T) {
	// Stored event 14:00-16:00 UTC; candidate 10:00-12:00 New York time
	// on the same day is 14:00-16:00 UTC, a full overlap.
	src := &fakeSource{events: []model.Event{storedEvent(1, utc(14, 0), utc(16, 0))}}
	d := NewDetector(src)

	got, err := d.FindConflictsRaw(context.Background(), "2025-06-01 10:00", "2025-06-01 12:00", "America/New_York", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFindConflictsRawInvalidTimezone(t *testing.T) {
	d := NewDetector(&fakeSource{})
	_, err := d.FindConflictsRaw(context.Background(), "2025-06-01 10:00", "2025-06-01 12:00", "Not/AZone", 0)
	assert.ErrorIs(t, err, timewindow.ErrInvalidTimezone)
}
