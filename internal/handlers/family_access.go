package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"famsync/internal/service"
)

// FamilyAccess decides what a signed-in caller may do with a family. The
// owner and the users whose profile names the family are members; everyone
// else is an outsider who may only validate a PIN to join.
type FamilyAccess struct {
	families *service.FamilyService
	users    *service.UserService
	log      *zap.Logger
}

// NewFamilyAccess creates a new family access checker
func NewFamilyAccess(families *service.FamilyService, users *service.UserService, logger *zap.Logger) *FamilyAccess {
	return &FamilyAccess{
		families: families,
		users:    users,
		log:      logger,
	}
}

// isMember reports whether identityID belongs to familyID. ownerID is the
// family's owner when the caller already has it, or "" to look it up.
func (a *FamilyAccess) isMember(ctx context.Context, familyID, ownerID, identityID string) (bool, error) {
	if ownerID != "" && ownerID == identityID {
		return true, nil
	}

	memberOf, err := a.users.FamilyOf(ctx, identityID)
	if err != nil {
		return false, err
	}
	if memberOf == familyID {
		return true, nil
	}
	if ownerID != "" {
		return false, nil
	}

	owner, err := a.families.OwnerOf(ctx, familyID)
	if err != nil {
		return false, err
	}
	return owner == identityID, nil
}

// RequireMember wraps a family-scoped handler, answering 403 to outsiders.
// It must run after RequireAuth.
func (a *FamilyAccess) RequireMember(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentityFromContext(r.Context())
		familyID := r.PathValue("id")

		ok, err := a.isMember(r.Context(), familyID, "", identity.ID)
		if err != nil {
			respondServiceError(w, a.log, "failed to check family membership", err)
			return
		}
		if !ok {
			respondServiceError(w, a.log, "", service.ErrNotFamilyMember)
			return
		}
		next(w, r)
	}
}
