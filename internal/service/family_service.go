package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/repository"
	"famsync/internal/validation"
)

// Notifier sends account and family emails
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, toEmail, toName string) error
	SendFamilyCreatedEmail(ctx context.Context, toEmail string, family *models.Family) error
}

// FamilyResult is one emission of GetFamily
type FamilyResult struct {
	Family *models.Family
	// Cached is set on the first emission, read from the local cache
	Cached bool
	Err    error
}

// FamilyService mediates family records between the remote store and the
// local cache
type FamilyService struct {
	store      remote.Store
	familyRepo *repository.FamilyRepository
	auth       AuthGateway
	notifier   Notifier
	log        *zap.Logger
}

// NewFamilyService creates a new family service. notifier may be nil.
func NewFamilyService(store remote.Store, familyRepo *repository.FamilyRepository, auth AuthGateway, notifier Notifier, logger *zap.Logger) *FamilyService {
	return &FamilyService{
		store:      store,
		familyRepo: familyRepo,
		auth:       auth,
		notifier:   notifier,
		log:        logger,
	}
}

// GetFamily emits the cached copy of a family, possibly nil, followed by
// the remote copy when one exists. The remote copy overwrites the cache
// before it is emitted. The channel is closed after the last emission.
func (s *FamilyService) GetFamily(ctx context.Context, familyID string) <-chan FamilyResult {
	results := make(chan FamilyResult, 2)

	if familyID == "" {
		results <- FamilyResult{Err: ErrBlankFamilyID}
		close(results)
		return results
	}

	go func() {
		defer close(results)

		cached, err := s.familyRepo.GetFamily(ctx, familyID)
		if err != nil {
			s.log.Warn("failed to read cached family", zap.String("family_id", familyID), zap.Error(err))
		}
		first := FamilyResult{Cached: true}
		if cached != nil {
			first.Family = &cached.Family
		}
		results <- first

		family, err := s.fetchFamily(ctx, familyID)
		if errors.Is(err, remote.ErrNotFound) {
			return
		}
		if err != nil {
			results <- FamilyResult{Err: fmt.Errorf("failed to fetch family: %w", err)}
			return
		}

		if err := s.familyRepo.UpsertFamily(ctx, family); err != nil {
			results <- FamilyResult{Err: err}
			return
		}
		results <- FamilyResult{Family: family}
	}()

	return results
}

// AddOrUpdateFamily writes a family to the local cache and then to the
// remote store
func (s *FamilyService) AddOrUpdateFamily(ctx context.Context, family *models.Family) error {
	if family.ID == "" {
		return ErrBlankFamilyID
	}

	if err := s.familyRepo.UpsertFamily(ctx, family); err != nil {
		return fmt.Errorf("failed to save family: %w", err)
	}
	if err := s.store.Set(ctx, remote.FamiliesCollection, family.ID, family); err != nil {
		return fmt.Errorf("failed to save family: %w", err)
	}
	return nil
}

// DeleteFamily removes a family from the local cache and the remote store.
// Members and events are left in place.
func (s *FamilyService) DeleteFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return ErrBlankFamilyID
	}

	if err := s.familyRepo.DeleteFamily(ctx, familyID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, remote.FamiliesCollection, familyID); err != nil {
		return fmt.Errorf("failed to delete family: %w", err)
	}
	return nil
}

// ValidateFamilyCredentials checks that familyID exists and that pin
// matches. It returns familyID on success.
func (s *FamilyService) ValidateFamilyCredentials(ctx context.Context, familyID, pin string) (string, error) {
	if _, err := s.ValidateFamily(ctx, familyID, pin); err != nil {
		return "", err
	}
	return familyID, nil
}

// ValidateFamily is ValidateFamilyCredentials returning the family itself
func (s *FamilyService) ValidateFamily(ctx context.Context, familyID, pin string) (*models.Family, error) {
	if familyID == "" {
		return nil, joinError(ErrBlankFamilyID)
	}

	family, err := s.fetchFamily(ctx, familyID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, joinError(&FamilyNotFoundError{ID: familyID})
	}
	if err != nil {
		return nil, joinError(err)
	}

	if family.PIN != pin {
		return nil, joinError(ErrIncorrectPIN)
	}
	return family, nil
}

// CreateFamily creates a family owned by the current identity and returns
// its new id
func (s *FamilyService) CreateFamily(ctx context.Context, name, pin string) (string, error) {
	identity, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("Could not create family: %w", err)
	}
	if identity == nil {
		return "", ErrNotAuthenticated
	}

	if err := validation.Required("name", name); err != nil {
		return "", err
	}
	if err := validation.ValidatePIN(pin); err != nil {
		return "", err
	}

	family := &models.Family{
		ID:      s.store.NewDocumentID(remote.FamiliesCollection),
		Name:    name,
		PIN:     pin,
		OwnerID: identity.ID,
	}
	if err := s.store.Set(ctx, remote.FamiliesCollection, family.ID, family); err != nil {
		return "", fmt.Errorf("Could not create family: %w", err)
	}

	if err := s.familyRepo.UpsertFamily(ctx, family); err != nil {
		s.log.Warn("failed to cache new family", zap.String("family_id", family.ID), zap.Error(err))
	}

	s.log.Info("family created",
		zap.String("family_id", family.ID),
		zap.String("owner_id", family.OwnerID))

	if s.notifier != nil && identity.Email != "" {
		if err := s.notifier.SendFamilyCreatedEmail(ctx, identity.Email, family); err != nil {
			s.log.Warn("failed to send family email", zap.String("family_id", family.ID), zap.Error(err))
		}
	}

	return family.ID, nil
}

// GetFamilyData looks a family up for display. Missing families and
// errors both yield nil.
func (s *FamilyService) GetFamilyData(ctx context.Context, familyID string) (*models.Family, error) {
	if familyID == "" {
		return nil, nil
	}

	family, err := s.fetchFamily(ctx, familyID)
	if err != nil {
		s.log.Info("family lookup failed", zap.String("family_id", familyID), zap.Error(err))
		return nil, nil
	}
	return family, nil
}

// RefreshCachedFamilies re-fetches every cached family and writes the
// remote copy through to the cache. It returns the number refreshed.
func (s *FamilyService) RefreshCachedFamilies(ctx context.Context) (int, error) {
	cached, err := s.familyRepo.ListFamilies(ctx)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, c := range cached {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}

		family, err := s.fetchFamily(ctx, c.Family.ID)
		if err != nil {
			s.log.Warn("failed to refresh family", zap.String("family_id", c.Family.ID), zap.Error(err))
			continue
		}
		if err := s.familyRepo.UpsertFamily(ctx, family); err != nil {
			s.log.Warn("failed to refresh family", zap.String("family_id", c.Family.ID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// OwnerOf returns the owner of a family. A missing family yields a
// FamilyNotFoundError; the cached copy answers when the remote store cannot.
func (s *FamilyService) OwnerOf(ctx context.Context, familyID string) (string, error) {
	if familyID == "" {
		return "", ErrBlankFamilyID
	}

	family, err := s.fetchFamily(ctx, familyID)
	if err == nil {
		return family.OwnerID, nil
	}
	if errors.Is(err, remote.ErrNotFound) {
		return "", &FamilyNotFoundError{ID: familyID}
	}

	cached, cacheErr := s.familyRepo.GetFamily(ctx, familyID)
	if cacheErr == nil && cached != nil {
		return cached.Family.OwnerID, nil
	}
	return "", err
}

func (s *FamilyService) fetchFamily(ctx context.Context, familyID string) (*models.Family, error) {
	doc, err := s.store.Get(ctx, remote.FamiliesCollection, familyID)
	if err != nil {
		return nil, err
	}

	var family models.Family
	if err := doc.DataTo(&family); err != nil {
		return nil, fmt.Errorf("failed to decode family %s: %w", familyID, err)
	}
	if family.ID == "" {
		family.ID = doc.ID()
	}
	return &family, nil
}
