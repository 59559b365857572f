package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/repository"
)

// UserService manages user profiles. Remote writes are mirrored into the
// local cache.
type UserService struct {
	store    remote.Store
	userRepo *repository.UserRepository
	log      *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store remote.Store, userRepo *repository.UserRepository, logger *zap.Logger) *UserService {
	return &UserService{
		store:    store,
		userRepo: userRepo,
		log:      logger,
	}
}

// GetUserData fetches a user profile. Any failure is logged and yields nil.
func (s *UserService) GetUserData(ctx context.Context, userID string) *models.User {
	if userID == "" {
		return nil
	}

	user, err := s.fetchUser(ctx, userID)
	if err != nil {
		s.log.Info("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	s.cache(ctx, user)
	return user
}

// AddUser stores a new user. The user's FamilyPIN must match the family's
// PIN unless the user owns the family.
func (s *UserService) AddUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return ErrBlankUserID
	}
	if user.FamilyID == "" {
		return ErrBlankFamilyID
	}

	if err := s.checkMembership(ctx, user); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	if err := s.store.Set(ctx, remote.UsersCollection, user.ID, user); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	s.cache(ctx, user)
	return nil
}

// UpdateUser overwrites a user profile. A user always belongs to a family,
// so a blank FamilyID is rejected. Moving the user to another family is
// subject to the same PIN check as AddUser.
func (s *UserService) UpdateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return ErrBlankUserID
	}
	if user.FamilyID == "" {
		return ErrBlankFamilyID
	}

	current, err := s.fetchUser(ctx, user.ID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if current == nil || current.FamilyID != user.FamilyID {
		if err := s.checkMembership(ctx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
	}

	if err := s.store.Set(ctx, remote.UsersCollection, user.ID, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	s.cache(ctx, user)
	return nil
}

// DeleteUser removes a user profile. Family membership and events are not
// touched.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrBlankUserID
	}

	if err := s.store.Delete(ctx, remote.UsersCollection, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.userRepo.DeleteUser(ctx, userID); err != nil {
		s.log.Warn("failed to remove cached user", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// GetCachedMembers returns the locally cached members of a family
func (s *UserService) GetCachedMembers(ctx context.Context, familyID string) ([]models.User, error) {
	if familyID == "" {
		return nil, ErrBlankFamilyID
	}

	cached, err := s.userRepo.GetFamilyMembers(ctx, familyID)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(cached))
	for _, c := range cached {
		users = append(users, c.User)
	}
	return users, nil
}

// FamilyOf returns the family a user belongs to, or "" when the user has no
// profile. The cached profile answers when the remote store cannot.
func (s *UserService) FamilyOf(ctx context.Context, userID string) (string, error) {
	user, err := s.fetchUser(ctx, userID)
	if err == nil {
		return user.FamilyID, nil
	}
	if errors.Is(err, remote.ErrNotFound) {
		return "", nil
	}

	cached, cacheErr := s.userRepo.GetUser(ctx, userID)
	if cacheErr == nil && cached != nil {
		return cached.User.FamilyID, nil
	}
	return "", err
}

// checkMembership rejects a user whose FamilyPIN does not open the family.
// Unknown families are rejected the same way.
func (s *UserService) checkMembership(ctx context.Context, user *models.User) error {
	doc, err := s.store.Get(ctx, remote.FamiliesCollection, user.FamilyID)
	if errors.Is(err, remote.ErrNotFound) {
		return remote.ErrPermissionDenied
	}
	if err != nil {
		return err
	}

	var family models.Family
	if err := doc.DataTo(&family); err != nil {
		return fmt.Errorf("failed to decode family %s: %w", user.FamilyID, err)
	}
	if family.OwnerID == user.ID {
		return nil
	}
	if family.PIN != user.FamilyPIN {
		return remote.ErrPermissionDenied
	}
	return nil
}

func (s *UserService) fetchUser(ctx context.Context, userID string) (*models.User, error) {
	doc, err := s.store.Get(ctx, remote.UsersCollection, userID)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", userID, err)
	}
	if user.ID == "" {
		user.ID = doc.ID()
	}
	return &user, nil
}

func (s *UserService) cache(ctx context.Context, user *models.User) {
	if err := s.userRepo.UpsertUser(ctx, user); err != nil {
		s.log.Warn("failed to cache user", zap.String("user_id", user.ID), zap.Error(err))
	}
}
