package repository

import (
	"context"
	"fmt"
	"time"

	"famsync/internal/database"
	"famsync/internal/models"
)

var eventColumns = []string{
	"remote_id", "family_id", "title", "start_date", "end_date", "all_day",
	"location", "notification", "repeat_rule", "notes", "created_by",
	"participants", "is_synced", "updated_at",
}

const selectEvent = `
	SELECT id, remote_id, family_id, title, start_date, end_date, all_day,
	       location, notification, repeat_rule, notes, created_by,
	       participants, is_synced, updated_at
	FROM events`

type eventRow struct {
	LocalID      int64  `db:"id"`
	RemoteID     string `db:"remote_id"`
	FamilyID     string `db:"family_id"`
	Title        string `db:"title"`
	StartDate    int64  `db:"start_date"`
	EndDate      int64  `db:"end_date"`
	AllDay       bool   `db:"all_day"`
	Location     string `db:"location"`
	Notification string `db:"notification"`
	Repeat       string `db:"repeat_rule"`
	Notes        string `db:"notes"`
	CreatedBy    string `db:"created_by"`
	Participants string `db:"participants"`
	IsSynced     bool   `db:"is_synced"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (row eventRow) toModel() models.CachedEvent {
	return models.CachedEvent{
		LocalID: row.LocalID,
		Event: models.Event{
			ID:           row.RemoteID,
			Title:        row.Title,
			StartDate:    row.StartDate,
			EndDate:      row.EndDate,
			AllDay:       row.AllDay,
			Location:     row.Location,
			Notification: row.Notification,
			Repeat:       row.Repeat,
			Notes:        row.Notes,
			CreatedBy:    row.CreatedBy,
			FamilyID:     row.FamilyID,
			Participants: models.SplitParticipants(row.Participants),
		},
		IsSynced:  row.IsSynced,
		UpdatedAt: time.UnixMilli(row.UpdatedAt),
	}
}

// EventRepository handles local cache operations for events
type EventRepository struct {
	db *database.DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetEventsForFamily returns the cached events of a family ordered by start date
func (r *EventRepository) GetEventsForFamily(ctx context.Context, familyID string) ([]models.CachedEvent, error) {
	return r.selectEvents(ctx, selectEvent+" WHERE family_id = ? ORDER BY start_date, id", familyID)
}

// GetUnsyncedEvents returns cached events not yet confirmed by the remote store
func (r *EventRepository) GetUnsyncedEvents(ctx context.Context) ([]models.CachedEvent, error) {
	query := selectEvent + " WHERE is_synced = " + r.db.Dialect.BoolValue(false) + " ORDER BY id"
	return r.selectEvents(ctx, query)
}

// ListEvents returns every cached event ordered by local id
func (r *EventRepository) ListEvents(ctx context.Context) ([]models.CachedEvent, error) {
	return r.selectEvents(ctx, selectEvent+" ORDER BY id")
}

// UpsertEvent inserts or overwrites the cached copy of an event
func (r *EventRepository) UpsertEvent(ctx context.Context, event *models.Event, synced bool) error {
	return upsertEvent(ctx, r.db, event, synced)
}

// MarkAsSynced flags a cached event as matching the remote store
func (r *EventRepository) MarkAsSynced(ctx context.Context, remoteID string) error {
	query := "UPDATE events SET is_synced = " + r.db.Dialect.BoolValue(true) + ", updated_at = ? WHERE remote_id = ?"
	if _, err := r.db.Exec(ctx, query, time.Now().UnixMilli(), remoteID); err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}
	return nil
}

// DeleteEvent removes a cached event. Missing rows are ignored.
func (r *EventRepository) DeleteEvent(ctx context.Context, remoteID string) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM events WHERE remote_id = ?", remoteID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ReplaceFamilyEvents swaps the cached events of a family for a remote
// snapshot in one transaction. Every stored row is marked synced.
func (r *EventRepository) ReplaceFamilyEvents(ctx context.Context, familyID string, events []models.Event) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM events WHERE family_id = ?", familyID); err != nil {
			return fmt.Errorf("failed to clear family events: %w", err)
		}
		for i := range events {
			if err := upsertEvent(ctx, tx, &events[i], true); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertEvent(ctx context.Context, q database.DBTX, event *models.Event, synced bool) error {
	if event.ID == "" {
		return fmt.Errorf("failed to cache event: remote id is blank")
	}
	query := q.GetDialect().UpsertQuery("events", "remote_id", eventColumns)
	_, err := q.Exec(ctx, query,
		event.ID, event.FamilyID, event.Title, event.StartDate, event.EndDate, event.AllDay,
		event.Location, event.Notification, event.Repeat, event.Notes, event.CreatedBy,
		models.JoinParticipants(event.Participants), synced, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache event: %w", err)
	}
	return nil
}

func (r *EventRepository) selectEvents(ctx context.Context, query string, args ...any) ([]models.CachedEvent, error) {
	var rows []eventRow
	if err := r.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]models.CachedEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.toModel())
	}
	return events, nil
}
