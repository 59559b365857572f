package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"famsync/internal/database"
	"famsync/internal/models"
	"famsync/internal/repository"
)

const backupVersion = "1.0"

// BackupData represents the complete local cache backup structure
type BackupData struct {
	Version      string          `json:"version"`
	ExportedAt   time.Time       `json:"exported_at"`
	DatabaseType string          `json:"database_type"`
	Accounts     []AccountBackup `json:"accounts"`
	Families     []models.Family `json:"families"`
	Users        []models.User   `json:"users"`
	Events       []EventBackup   `json:"events"`
}

// AccountBackup represents an auth account for backup
type AccountBackup struct {
	IdentityID   string    `json:"identity_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventBackup represents a cached event for backup
type EventBackup struct {
	models.Event
	IsSynced bool `json:"is_synced"`
}

// BackupService handles local cache backup and restore operations
type BackupService struct {
	db          *database.DB
	accountRepo *repository.AccountRepository
	familyRepo  *repository.FamilyRepository
	userRepo    *repository.UserRepository
	eventRepo   *repository.EventRepository
	log         *zap.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	return &BackupService{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		familyRepo:  repository.NewFamilyRepository(db),
		userRepo:    repository.NewUserRepository(db),
		eventRepo:   repository.NewEventRepository(db),
		log:         logger,
	}
}

// Export creates a complete backup of the local cache to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, file); err != nil {
		return err
	}

	s.log.Info("database exported", zap.String("path", outputPath))
	return nil
}

// ExportToWriter writes a complete backup to w
func (s *BackupService) ExportToWriter(ctx context.Context, w io.Writer) error {
	backup, err := s.collect(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	s.log.Info("backup written",
		zap.Int("accounts", len(backup.Accounts)),
		zap.Int("families", len(backup.Families)),
		zap.Int("users", len(backup.Users)),
		zap.Int("events", len(backup.Events)))
	return nil
}

// Import restores the local cache from a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores the local cache from a backup reader. Existing
// records with the same keys are overwritten.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	s.log.Info("importing backup",
		zap.String("version", backup.Version),
		zap.Time("exported_at", backup.ExportedAt),
		zap.String("database_type", backup.DatabaseType))

	for i := range backup.Accounts {
		a := backup.Accounts[i]
		account := &models.Account{
			IdentityID:   a.IdentityID,
			Email:        a.Email,
			PasswordHash: a.PasswordHash,
			CreatedAt:    a.CreatedAt,
		}
		if err := s.accountRepo.RestoreAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to import accounts: %w", err)
		}
	}

	for i := range backup.Families {
		if err := s.familyRepo.UpsertFamily(ctx, &backup.Families[i]); err != nil {
			return fmt.Errorf("failed to import families: %w", err)
		}
	}

	for i := range backup.Users {
		if err := s.userRepo.UpsertUser(ctx, &backup.Users[i]); err != nil {
			return fmt.Errorf("failed to import users: %w", err)
		}
	}

	for i := range backup.Events {
		if err := s.eventRepo.UpsertEvent(ctx, &backup.Events[i].Event, backup.Events[i].IsSynced); err != nil {
			return fmt.Errorf("failed to import events: %w", err)
		}
	}

	s.log.Info("database import completed",
		zap.Int("accounts", len(backup.Accounts)),
		zap.Int("families", len(backup.Families)),
		zap.Int("users", len(backup.Users)),
		zap.Int("events", len(backup.Events)))
	return nil
}

// Clear deletes every cached record and account in one transaction
func (s *BackupService) Clear(ctx context.Context) error {
	tables := []string{"events", "users", "families", "accounts"}

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range tables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			s.log.Info("cleared table", zap.String("table", table))
		}
		return nil
	})
}

func (s *BackupService) collect(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:      backupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.DriverName(),
		Accounts:     []AccountBackup{},
		Families:     []models.Family{},
		Users:        []models.User{},
		Events:       []EventBackup{},
	}

	accounts, err := s.accountRepo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export accounts: %w", err)
	}
	for _, a := range accounts {
		backup.Accounts = append(backup.Accounts, AccountBackup{
			IdentityID:   a.IdentityID,
			Email:        a.Email,
			PasswordHash: a.PasswordHash,
			CreatedAt:    a.CreatedAt,
		})
	}

	families, err := s.familyRepo.ListFamilies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export families: %w", err)
	}
	for _, f := range families {
		backup.Families = append(backup.Families, f.Family)
	}

	users, err := s.userRepo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, u.User)
	}

	events, err := s.eventRepo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export events: %w", err)
	}
	for _, e := range events {
		backup.Events = append(backup.Events, EventBackup{Event: e.Event, IsSynced: e.IsSynced})
	}

	return backup, nil
}
