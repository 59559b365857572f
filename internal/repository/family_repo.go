package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"famsync/internal/database"
	"famsync/internal/models"
)

var familyColumns = []string{"remote_id", "name", "pin", "owner_id", "updated_at"}

type familyRow struct {
	LocalID   int64  `db:"id"`
	RemoteID  string `db:"remote_id"`
	Name      string `db:"name"`
	PIN       string `db:"pin"`
	OwnerID   string `db:"owner_id"`
	UpdatedAt int64  `db:"updated_at"`
}

func (row familyRow) toModel() models.CachedFamily {
	return models.CachedFamily{
		LocalID: row.LocalID,
		Family: models.Family{
			ID:      row.RemoteID,
			Name:    row.Name,
			PIN:     row.PIN,
			OwnerID: row.OwnerID,
		},
		UpdatedAt: time.UnixMilli(row.UpdatedAt),
	}
}

// FamilyRepository handles local cache operations for families
type FamilyRepository struct {
	db *database.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// GetFamily retrieves the cached copy of a family by its remote id.
// Returns nil, nil when the family is not cached.
func (r *FamilyRepository) GetFamily(ctx context.Context, remoteID string) (*models.CachedFamily, error) {
	var row familyRow
	err := r.db.Get(ctx, &row, "SELECT id, remote_id, name, pin, owner_id, updated_at FROM families WHERE remote_id = ?", remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}

	family := row.toModel()
	return &family, nil
}

// UpsertFamily inserts or overwrites the cached copy of a family
func (r *FamilyRepository) UpsertFamily(ctx context.Context, family *models.Family) error {
	return upsertFamily(ctx, r.db, family)
}

func upsertFamily(ctx context.Context, q database.DBTX, family *models.Family) error {
	if family.ID == "" {
		return fmt.Errorf("failed to cache family: remote id is blank")
	}
	query := q.GetDialect().UpsertQuery("families", "remote_id", familyColumns)
	_, err := q.Exec(ctx, query, family.ID, family.Name, family.PIN, family.OwnerID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to cache family: %w", err)
	}
	return nil
}

// DeleteFamily removes the cached copy of a family. Missing rows are ignored.
func (r *FamilyRepository) DeleteFamily(ctx context.Context, remoteID string) error {
	if _, err := r.db.Exec(ctx, "DELETE FROM families WHERE remote_id = ?", remoteID); err != nil {
		return fmt.Errorf("failed to delete family: %w", err)
	}
	return nil
}

// ListFamilies returns every cached family ordered by local id
func (r *FamilyRepository) ListFamilies(ctx context.Context) ([]models.CachedFamily, error) {
	var rows []familyRow
	if err := r.db.Select(ctx, &rows, "SELECT id, remote_id, name, pin, owner_id, updated_at FROM families ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}

	families := make([]models.CachedFamily, 0, len(rows))
	for _, row := range rows {
		families = append(families, row.toModel())
	}
	return families, nil
}
