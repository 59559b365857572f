package database

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDialect backs a cache shared by several service instances
type MySQLDialect struct{}

// NewMySQLDialect creates a new MySQL dialect
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// DSN forces utf8mb4 so event titles and names keep characters outside the
// basic multilingual plane.
func (d *MySQLDialect) DSN(config DialectConfig) string {
	return withParam(config.URL, "charset", "utf8mb4")
}

func (d *MySQLDialect) RewriteQuery(query string) string {
	return query
}

func (d *MySQLDialect) SupportsLastInsertId() bool {
	return true
}

func (d *MySQLDialect) ConfigureConnection(db *sql.DB, config DialectConfig) error {
	applyPool(db, config, 25, 5, 5*time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	_, err := db.Exec("SET FOREIGN_KEY_CHECKS = 1;")
	return err
}

func (d *MySQLDialect) MigrationsSubdir() string {
	return "mysql"
}

func (d *MySQLDialect) CreateMigrationsTableQuery() string {
	return `CREATE TABLE IF NOT EXISTS ` + schemaMigrationsTable + ` (
		filename VARCHAR(191) PRIMARY KEY,
		applied_at BIGINT NOT NULL DEFAULT (UNIX_TIMESTAMP() * 1000)
	) DEFAULT CHARSET = utf8mb4;`
}

func (d *MySQLDialect) BoolValue(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// UpsertQuery uses ON DUPLICATE KEY UPDATE, which keys on any unique index
func (d *MySQLDialect) UpsertQuery(table, conflictColumn string, columns []string) string {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == conflictColumn {
			continue
		}
		sets = append(sets, c+" = VALUES("+c+")")
	}
	return insertPrefix(table, columns) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}
