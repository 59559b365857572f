package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"famsync/internal/credentials"
	"famsync/internal/models"
	"famsync/internal/remote"
	"famsync/internal/validation"
)

// RegistrationState is how far a registration got
type RegistrationState int

const (
	StateNotRegistered RegistrationState = iota
	StateIdentityCreated
	StateFamilyResolved
	StateUserPersisted
)

func (s RegistrationState) String() string {
	switch s {
	case StateNotRegistered:
		return "not_registered"
	case StateIdentityCreated:
		return "identity_created"
	case StateFamilyResolved:
		return "family_resolved"
	case StateUserPersisted:
		return "user_persisted"
	default:
		return fmt.Sprintf("RegistrationState(%d)", int(s))
	}
}

// FamilyChoice selects whether registration creates or joins a family
type FamilyChoice string

const (
	FamilyCreate FamilyChoice = "create"
	FamilyJoin   FamilyChoice = "join"
)

// RegisterRequest is the input of Register. Profile supplies the user's
// name and other profile fields; its ID, FamilyID and Email are set by
// Register.
type RegisterRequest struct {
	Email      string       `json:"email"`
	Password   string       `json:"password"`
	Choice     FamilyChoice `json:"choice"`
	FamilyName string       `json:"familyName"`
	FamilyID   string       `json:"familyId"`
	PIN        string       `json:"pin"`
	Profile    models.User  `json:"profile"`
}

// RegistrationResult is the outcome of a successful Register
type RegistrationResult struct {
	User      *models.User      `json:"user"`
	FamilyID  string            `json:"familyId"`
	FamilyPIN string            `json:"familyPin,omitempty"`
	State     RegistrationState `json:"-"`
}

// RegistrationError carries the state a failed registration reached. Work
// done before the failure is not rolled back.
type RegistrationError struct {
	State RegistrationState
	Err   error
}

func (e *RegistrationError) Error() string {
	return e.Err.Error()
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// RegistrationService walks a new user through account creation, family
// resolution and profile creation
type RegistrationService struct {
	auth     AuthGateway
	families *FamilyService
	users    *UserService
	notifier Notifier
	log      *zap.Logger
}

// NewRegistrationService creates a new registration service. notifier may be nil.
func NewRegistrationService(auth AuthGateway, families *FamilyService, users *UserService, notifier Notifier, logger *zap.Logger) *RegistrationService {
	return &RegistrationService{
		auth:     auth,
		families: families,
		users:    users,
		notifier: notifier,
		log:      logger,
	}
}

// Register creates the account, resolves the family and persists the user.
// A joined family id is used as given; its PIN is checked when the user is
// written.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	if err := checkRegisterRequest(&req); err != nil {
		return nil, &RegistrationError{State: StateNotRegistered, Err: err}
	}

	identity, err := s.auth.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		return nil, &RegistrationError{State: StateNotRegistered, Err: err}
	}
	ctx = WithIdentity(ctx, identity)

	familyID := req.FamilyID
	pin := req.PIN
	if req.Choice == FamilyCreate {
		if pin == "" {
			if pin, err = credentials.GenerateFamilyPIN(); err != nil {
				return nil, &RegistrationError{State: StateIdentityCreated, Err: fmt.Errorf("failed to generate pin: %w", err)}
			}
		}
		if familyID, err = s.families.CreateFamily(ctx, req.FamilyName, pin); err != nil {
			return nil, &RegistrationError{State: StateIdentityCreated, Err: err}
		}
	}

	user := req.Profile
	user.ID = identity.ID
	user.FamilyID = familyID
	user.Email = identity.Email
	user.FamilyPIN = pin

	if err := s.users.AddUser(ctx, &user); err != nil {
		if errors.Is(err, remote.ErrPermissionDenied) {
			s.log.Info("registration rejected by membership check",
				zap.String("identity_id", identity.ID),
				zap.String("family_id", familyID))
			err = ErrJoinRejected
		}
		return nil, &RegistrationError{State: StateFamilyResolved, Err: err}
	}

	s.log.Info("user registered",
		zap.String("identity_id", identity.ID),
		zap.String("family_id", familyID),
		zap.String("choice", string(req.Choice)))

	if s.notifier != nil {
		if err := s.notifier.SendWelcomeEmail(ctx, user.Email, user.DisplayName()); err != nil {
			s.log.Warn("failed to send welcome email", zap.String("identity_id", identity.ID), zap.Error(err))
		}
	}

	result := &RegistrationResult{
		User:     &user,
		FamilyID: familyID,
		State:    StateUserPersisted,
	}
	if req.Choice == FamilyCreate {
		result.FamilyPIN = pin
	}
	return result, nil
}

func checkRegisterRequest(req *RegisterRequest) error {
	switch req.Choice {
	case FamilyCreate:
		if err := validation.Required("familyName", req.FamilyName); err != nil {
			return err
		}
	case FamilyJoin:
		if req.FamilyID == "" {
			return ErrBlankFamilyID
		}
	default:
		return validation.ValidationError{Field: "choice", Message: "must be create or join"}
	}
	return validation.ValidateName(req.Profile.FirstName)
}
