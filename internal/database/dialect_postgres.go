package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const applicationName = "famsync"

// PostgresDialect backs a cache shared by several service instances
type PostgresDialect struct{}

// NewPostgresDialect creates a new PostgreSQL dialect
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// DSN tags connections with the application name so they are easy to spot
// in pg_stat_activity. Both URL and key=value forms are accepted.
func (d *PostgresDialect) DSN(config DialectConfig) string {
	dsn := config.URL
	if strings.Contains(dsn, "application_name=") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		return withParam(dsn, "application_name", applicationName)
	}
	if dsn == "" {
		return dsn
	}
	return dsn + " application_name=" + applicationName
}

func (d *PostgresDialect) RewriteQuery(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

// SupportsLastInsertId is false; inserts use RETURNING id
func (d *PostgresDialect) SupportsLastInsertId() bool {
	return false
}

func (d *PostgresDialect) ConfigureConnection(db *sql.DB, config DialectConfig) error {
	applyPool(db, config, 25, 5, 5*time.Minute)
	db.SetConnMaxIdleTime(time.Minute)
	return nil
}

func (d *PostgresDialect) MigrationsSubdir() string {
	return "postgres"
}

func (d *PostgresDialect) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS ` + schemaMigrationsTable + ` (
		filename TEXT PRIMARY KEY,
		applied_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT
	);`
}

func (d *PostgresDialect) BoolValue(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *PostgresDialect) UpsertQuery(table, conflictColumn string, columns []string) string {
	return onConflictUpsert(table, conflictColumn, columns)
}
