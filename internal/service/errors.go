package service

import (
	"errors"
	"fmt"
)

var (
	ErrBlankFamilyID      = errors.New("family id is blank")
	ErrBlankEventID       = errors.New("event id is blank")
	ErrBlankUserID        = errors.New("user id is blank")
	ErrFamilyNotFound     = errors.New("family not found")
	ErrIncorrectPIN       = errors.New("Incorrect Family PIN.")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrJoinRejected       = errors.New("Error while joining: family id or pin invalid.")
	ErrNotFamilyMember    = errors.New("not a member of this family")
	ErrNotFamilyOwner     = errors.New("only the family owner can change it")
)

// FamilyNotFoundError reports a family id with no remote document.
// It matches ErrFamilyNotFound with errors.Is.
type FamilyNotFoundError struct {
	ID string
}

func (e *FamilyNotFoundError) Error() string {
	return fmt.Sprintf("Family with ID '%s' not found.", e.ID)
}

// Is makes errors.Is(err, ErrFamilyNotFound) true
func (e *FamilyNotFoundError) Is(target error) bool {
	return target == ErrFamilyNotFound
}

func joinError(err error) error {
	return fmt.Errorf("Could not join family: %w", err)
}
