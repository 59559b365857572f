package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"famsync/internal/live"
	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/service"
	"famsync/internal/validation"
)

func TestAddEventDeliveredToSubscriber(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	dinner := &models.Event{Title: "Dinner", FamilyID: "F1"}
	dinner.SetTimes(at, at)
	require.NoError(t, h.events.AddEvent(ctx, dinner))
	require.NotEmpty(t, dinner.ID)

	doc, err := h.store.Get(ctx, remote.EventsCollection("F1"), dinner.ID)
	require.NoError(t, err)
	var stored models.Event
	require.NoError(t, doc.DataTo(&stored))
	assert.Equal(t, "Dinner", stored.Title)
	assert.Equal(t, dinner.ID, stored.ID)

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitFor(t, sub, containsEvent(dinner.ID))
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "F1", snap.FamilyID)
	assert.Equal(t, "Dinner", snap.Events[0].Title)
	assert.True(t, snap.Events[0].Start().Equal(at))
}

func TestAddEventStoresDatesAsGiven(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()

	start := time.Date(1960, 7, 1, 9, 0, 0, 0, time.UTC)
	backwards := &models.Event{Title: "Picnic", FamilyID: "F1"}
	backwards.SetTimes(start, start.Add(-time.Hour))
	require.NoError(t, h.events.AddEvent(ctx, backwards))
	assert.Equal(t, 1, h.store.Writes())

	snap := waitFor(t, sub, containsEvent(backwards.ID))
	require.Len(t, snap.Events, 1)
	assert.True(t, snap.Events[0].Start().Equal(start))
	assert.True(t, snap.Events[0].End().Equal(start.Add(-time.Hour)))
}

func TestAddEventWhileSubscribed(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()

	first := waitFor(t, sub, func(live.Snapshot) bool { return true })
	assert.Empty(t, first.Events)

	ev := &models.Event{Title: "Swim practice", FamilyID: "F1", Participants: []string{"u2", "u1"}}
	require.NoError(t, h.events.AddEvent(ctx, ev))

	snap := waitFor(t, sub, containsEvent(ev.ID))
	assert.Equal(t, []string{"u2", "u1"}, snap.Events[0].Participants)
}

func TestDeleteEventRemovedFromSnapshot(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	keep := &models.Event{Title: "Keep", FamilyID: "F1"}
	drop := &models.Event{Title: "Drop", FamilyID: "F1"}
	require.NoError(t, h.events.AddEvent(ctx, keep))
	require.NoError(t, h.events.AddEvent(ctx, drop))

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()
	waitFor(t, sub, containsEvent(drop.ID))

	require.NoError(t, h.events.DeleteEvent(ctx, drop))

	snap := waitFor(t, sub, func(s live.Snapshot) bool { return !containsEvent(drop.ID)(s) })
	assert.Equal(t, []string{keep.ID}, eventIDs(snap))
}

func TestUpdateEventOverwrites(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	ev := &models.Event{Title: "Dentist", FamilyID: "F1", Location: "Main St"}
	require.NoError(t, h.events.AddEvent(ctx, ev))

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()

	ev.Location = "High St"
	require.NoError(t, h.events.UpdateEvent(ctx, ev))

	snap := waitFor(t, sub, func(s live.Snapshot) bool {
		return len(s.Events) == 1 && s.Events[0].Location == "High St"
	})
	assert.Equal(t, ev.ID, snap.Events[0].ID)
}

func TestResubscribeIsIndependentOfCancelled(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	collection := remote.EventsCollection("F1")

	old, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	waitFor(t, old, func(live.Snapshot) bool { return true })
	old.Cancel()

	assert.Equal(t, 0, h.store.ActiveListeners(collection))
	assert.Equal(t, 0, h.events.Feeds())
	_, open := <-old.C()
	assert.False(t, open)

	fresh, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer fresh.Cancel()
	assert.Equal(t, 1, h.store.ActiveListeners(collection))

	ev := &models.Event{Title: "Movie night", FamilyID: "F1"}
	require.NoError(t, h.events.AddEvent(ctx, ev))
	waitFor(t, fresh, containsEvent(ev.ID))

	_, open = <-old.C()
	assert.False(t, open, "cancelled subscription must stay closed")
}

func TestSubscribersShareRemoteListener(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	collection := remote.EventsCollection("F1")

	a, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	b, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	other, err := h.events.Subscribe(ctx, "F2")
	require.NoError(t, err)
	defer other.Cancel()

	assert.Equal(t, 1, h.store.ActiveListeners(collection))
	assert.Equal(t, 2, h.events.Feeds())

	a.Cancel()
	assert.Equal(t, 1, h.store.ActiveListeners(collection))
	b.Cancel()
	assert.Equal(t, 0, h.store.ActiveListeners(collection))
}

func TestListenerErrorEndsSubscription(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	waitFor(t, sub, func(live.Snapshot) bool { return true })

	require.Equal(t, 1, h.store.BreakListeners(remote.EventsCollection("F1"), remote.ErrPermissionDenied))

	select {
	case _, ok := <-sub.C():
		for ok {
			_, ok = <-sub.C()
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscription not terminated")
	}
	assert.ErrorIs(t, sub.Err(), remote.ErrPermissionDenied)
	assert.Equal(t, 0, h.events.Feeds())
}

func TestSubscribeBlankFamily(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.events.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, service.ErrBlankFamilyID)
	assert.Equal(t, 0, h.events.Feeds())
}

func TestEventWritePreconditions(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	tests := []struct {
		name  string
		call  func(*models.Event) error
		event models.Event
		want  error
	}{
		{
			name:  "add without family",
			call:  func(e *models.Event) error { return h.events.AddEvent(ctx, e) },
			event: models.Event{Title: "Dinner"},
			want:  service.ErrBlankFamilyID,
		},
		{
			name:  "update without id",
			call:  func(e *models.Event) error { return h.events.UpdateEvent(ctx, e) },
			event: models.Event{Title: "Dinner", FamilyID: "F1"},
			want:  service.ErrBlankEventID,
		},
		{
			name:  "update without family",
			call:  func(e *models.Event) error { return h.events.UpdateEvent(ctx, e) },
			event: models.Event{ID: "E1", Title: "Dinner"},
			want:  service.ErrBlankFamilyID,
		},
		{
			name:  "delete without id",
			call:  func(e *models.Event) error { return h.events.DeleteEvent(ctx, e) },
			event: models.Event{FamilyID: "F1"},
			want:  service.ErrBlankEventID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.store.ResetCounters()
			ev := tt.event
			err := tt.call(&ev)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, h.store.Writes(), "no remote write expected")
			assert.Equal(t, 0, h.store.Reads(), "no remote read expected")
		})
	}
}

func TestAddEventRequiresTitle(t *testing.T) {
	h := newHarness(t, false)

	err := h.events.AddEvent(context.Background(), &models.Event{FamilyID: "F1", Title: "  "})
	assert.True(t, validation.IsValidationError(err))
	assert.Equal(t, 0, h.store.Writes())
}

func TestDeleteMissingEventSucceeds(t *testing.T) {
	h := newHarness(t, false)

	err := h.events.DeleteEvent(context.Background(), &models.Event{ID: "nope", FamilyID: "F1"})
	assert.NoError(t, err)
}

func TestAddEventRemoteFailure(t *testing.T) {
	h := newHarness(t, false)
	h.store.FailWrites(remote.ErrUnavailable)

	err := h.events.AddEvent(context.Background(), &models.Event{Title: "Dinner", FamilyID: "F1"})
	assert.ErrorIs(t, err, remote.ErrUnavailable)
	assert.Equal(t, 1, h.store.Writes(), "no retry expected")
}

func TestMirroringReplacesCachedEvents(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	stale := &models.Event{ID: "gone", Title: "Old", FamilyID: "F1"}
	require.NoError(t, h.eventRepo.UpsertEvent(ctx, stale, false))

	ev := &models.Event{Title: "Picnic", FamilyID: "F1"}
	require.NoError(t, h.events.AddEvent(ctx, ev))

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()
	waitFor(t, sub, containsEvent(ev.ID))

	cached, err := h.events.ListCachedEvents(ctx, "F1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, ev.ID, cached[0].ID)

	rows, err := h.eventRepo.GetEventsForFamily(ctx, "F1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsSynced)
}

func TestNoMirroringByDefault(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	ev := &models.Event{Title: "Picnic", FamilyID: "F1"}
	require.NoError(t, h.events.AddEvent(ctx, ev))

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()
	waitFor(t, sub, containsEvent(ev.ID))

	cached, err := h.events.ListCachedEvents(ctx, "F1")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestUndecodableEventsAreSkipped(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	collection := remote.EventsCollection("F1")
	require.NoError(t, h.store.Set(ctx, collection, "bad", map[string]any{"title": 42}))
	good := &models.Event{Title: "Good", FamilyID: "F1"}
	require.NoError(t, h.events.AddEvent(ctx, good))

	sub, err := h.events.Subscribe(ctx, "F1")
	require.NoError(t, err)
	defer sub.Cancel()

	snap := waitFor(t, sub, containsEvent(good.ID))
	assert.Equal(t, []string{good.ID}, eventIDs(snap))
}

func TestSubscribeListenFailure(t *testing.T) {
	h := newHarness(t, false)
	h.store.FailListen(remote.ErrUnavailable)

	_, err := h.events.Subscribe(context.Background(), "F1")
	assert.True(t, errors.Is(err, remote.ErrUnavailable))
}
