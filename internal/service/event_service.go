package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"famsync/internal/live"
	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/repository"
	"famsync/internal/validation"
)

const mirrorTimeout = 10 * time.Second

// EventService reads and writes a family's events. Writes go straight to
// the remote store; subscribers see them through the family's live feed.
type EventService struct {
	store     remote.Store
	eventRepo *repository.EventRepository
	registry  *live.Registry
	log       *zap.Logger
}

// NewEventService creates a new event service. When mirror is set every
// live snapshot also replaces the family's cached events.
func NewEventService(store remote.Store, eventRepo *repository.EventRepository, mirror bool, logger *zap.Logger) *EventService {
	source := &eventSource{
		store:     store,
		eventRepo: eventRepo,
		mirror:    mirror,
		log:       logger,
	}
	return &EventService{
		store:     store,
		eventRepo: eventRepo,
		registry:  live.NewRegistry(source, logger),
		log:       logger,
	}
}

// Subscribe follows the events of a family. Each value received from the
// subscription is the full current event list.
func (s *EventService) Subscribe(ctx context.Context, familyID string) (*live.Subscription, error) {
	if familyID == "" {
		return nil, ErrBlankFamilyID
	}
	return s.registry.Subscribe(ctx, familyID)
}

// AddEvent stores a new event and sets its generated id
func (s *EventService) AddEvent(ctx context.Context, event *models.Event) error {
	if event.FamilyID == "" {
		return ErrBlankFamilyID
	}
	if err := validation.ValidateEvent(event); err != nil {
		return err
	}

	collection := remote.EventsCollection(event.FamilyID)
	event.ID = s.store.NewDocumentID(collection)
	if err := s.store.Set(ctx, collection, event.ID, event); err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}

	s.log.Debug("event added",
		zap.String("family_id", event.FamilyID),
		zap.String("event_id", event.ID))
	return nil
}

// UpdateEvent overwrites an existing event
func (s *EventService) UpdateEvent(ctx context.Context, event *models.Event) error {
	if err := checkEventKeys(event); err != nil {
		return err
	}
	if err := validation.ValidateEvent(event); err != nil {
		return err
	}

	if err := s.store.Set(ctx, remote.EventsCollection(event.FamilyID), event.ID, event); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event. Deleting a missing event succeeds.
func (s *EventService) DeleteEvent(ctx context.Context, event *models.Event) error {
	if err := checkEventKeys(event); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, remote.EventsCollection(event.FamilyID), event.ID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListCachedEvents returns the events mirrored into the local cache. The
// list stays empty unless mirroring is enabled.
func (s *EventService) ListCachedEvents(ctx context.Context, familyID string) ([]models.Event, error) {
	if familyID == "" {
		return nil, ErrBlankFamilyID
	}

	cached, err := s.eventRepo.GetEventsForFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}

	events := make([]models.Event, 0, len(cached))
	for _, c := range cached {
		events = append(events, c.Event)
	}
	return events, nil
}

// Feeds returns the number of families with an open remote listener
func (s *EventService) Feeds() int {
	return s.registry.Feeds()
}

// Close ends every open subscription
func (s *EventService) Close() {
	s.registry.Close()
}

func checkEventKeys(event *models.Event) error {
	if event.ID == "" {
		return ErrBlankEventID
	}
	if event.FamilyID == "" {
		return ErrBlankFamilyID
	}
	return nil
}

// eventSource opens remote listeners on a family's events subcollection
type eventSource struct {
	store     remote.Store
	eventRepo *repository.EventRepository
	mirror    bool
	log       *zap.Logger
}

func (s *eventSource) Listen(familyID string, onSnapshot func([]models.Event), onError func(error)) (func(), error) {
	// The registry owns the listener lifetime, so it is not tied to the
	// context of the first subscriber.
	listener, err := s.store.Listen(context.Background(), remote.EventsCollection(familyID),
		func(docs []remote.Document) {
			events := s.decode(familyID, docs)
			if s.mirror {
				s.mirrorEvents(familyID, events)
			}
			onSnapshot(events)
		},
		remote.ErrorFunc(onError),
	)
	if err != nil {
		return nil, err
	}
	return listener.Stop, nil
}

func (s *eventSource) decode(familyID string, docs []remote.Document) []models.Event {
	events := make([]models.Event, 0, len(docs))
	for _, doc := range docs {
		var event models.Event
		if err := doc.DataTo(&event); err != nil {
			s.log.Warn("skipping undecodable event",
				zap.String("family_id", familyID),
				zap.String("event_id", doc.ID()),
				zap.Error(err))
			continue
		}
		if event.ID == "" {
			event.ID = doc.ID()
		}
		if event.FamilyID == "" {
			event.FamilyID = familyID
		}
		if event.Participants == nil {
			event.Participants = []string{}
		}
		events = append(events, event)
	}
	return events
}

func (s *eventSource) mirrorEvents(familyID string, events []models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := s.eventRepo.ReplaceFamilyEvents(ctx, familyID, events); err != nil {
		s.log.Error("failed to mirror family events",
			zap.String("family_id", familyID),
			zap.Error(err))
	}
}
