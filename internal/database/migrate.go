package database

import (
	"context"
	"database/sql"
	"fmt"
)

// The unique keys on email and external_id are what make concurrent first
// logins safe: the losing insert fails and the resolver looks the winner up.
const mysqlAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id           CHAR(36)      NOT NULL PRIMARY KEY,
    email        VARCHAR(320)  NOT NULL,
    external_id  VARCHAR(255)  NULL,
    display_name VARCHAR(255)  NOT NULL,
    avatar_url   VARCHAR(1024) NULL,
    role         ENUM('admin','member') NOT NULL DEFAULT 'member',
    is_active    TINYINT(1)    NOT NULL DEFAULT 1,
    created_at   DATETIME      NOT NULL,
    updated_at   DATETIME      NOT NULL,
    UNIQUE KEY uq_accounts_email (email),
    UNIQUE KEY uq_accounts_external_id (external_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var sqliteAccounts = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id           TEXT     NOT NULL PRIMARY KEY,
    email        TEXT     NOT NULL,
    external_id  TEXT     NULL,
    display_name TEXT     NOT NULL,
    avatar_url   TEXT     NULL,
    role         TEXT     NOT NULL DEFAULT 'member' CHECK (role IN ('admin','member')),
    is_active    INTEGER  NOT NULL DEFAULT 1,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_email ON accounts (email)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_accounts_external_id ON accounts (external_id)`,
}

// Migrate creates the accounts table for the given driver if it is missing.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch driver {
	case DriverMySQL:
		stmts = []string{mysqlAccounts}
	case DriverSQLite:
		stmts = sqliteAccounts
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
