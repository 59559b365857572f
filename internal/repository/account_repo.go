package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"famsync/internal/database"
	"famsync/internal/models"
)

type accountRow struct {
	LocalID      int64  `db:"id"`
	IdentityID   string `db:"identity_id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    int64  `db:"created_at"`
}

func (row accountRow) toModel() *models.Account {
	return &models.Account{
		LocalID:      row.LocalID,
		IdentityID:   row.IdentityID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    time.UnixMilli(row.CreatedAt),
	}
}

// AccountRepository stores the credentials behind auth identities
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateAccount stores a new account and returns it with its local id set.
// Emails are stored lower-cased.
func (r *AccountRepository) CreateAccount(ctx context.Context, identityID, email, passwordHash string) (*models.Account, error) {
	now := time.Now()
	email = normalizeEmail(email)

	query := "INSERT INTO accounts (identity_id, email, password_hash, created_at) VALUES (?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(ctx, query, identityID, email, passwordHash, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return &models.Account{
		LocalID:      id,
		IdentityID:   identityID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.UnixMilli(now.UnixMilli()),
	}, nil
}

// GetByEmail retrieves an account by email. Returns nil, nil when absent.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, "email", normalizeEmail(email))
}

// GetByIdentityID retrieves an account by identity id. Returns nil, nil when absent.
func (r *AccountRepository) GetByIdentityID(ctx context.Context, identityID string) (*models.Account, error) {
	return r.getOne(ctx, "identity_id", identityID)
}

func (r *AccountRepository) getOne(ctx context.Context, column, value string) (*models.Account, error) {
	var row accountRow
	query := "SELECT id, identity_id, email, password_hash, created_at FROM accounts WHERE " + column + " = ?"
	err := r.db.Get(ctx, &row, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return row.toModel(), nil
}

// ListAccounts returns every account ordered by local id
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var rows []accountRow
	if err := r.db.Select(ctx, &rows, "SELECT id, identity_id, email, password_hash, created_at FROM accounts ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]models.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, *row.toModel())
	}
	return accounts, nil
}

// RestoreAccount inserts or overwrites an account keyed by identity id
func (r *AccountRepository) RestoreAccount(ctx context.Context, account *models.Account) error {
	columns := []string{"identity_id", "email", "password_hash", "created_at"}
	query := r.db.Dialect.UpsertQuery("accounts", "identity_id", columns)
	_, err := r.db.Exec(ctx, query,
		account.IdentityID, normalizeEmail(account.Email), account.PasswordHash, account.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to restore account: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
