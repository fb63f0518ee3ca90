// Package repository defines error types that are reused across the
// repositories. These sentinel values allow higher layers such as the
// identity resolver and the handlers to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrAccountNotFound is returned when a lookup matches no account.
var ErrAccountNotFound = errors.New("account not found")

// ErrDuplicateAccount is returned when a create or update would violate the
// unique email or external id constraint. Callers racing on a first login
// should treat it as "someone else won" and look the account up again.
var ErrDuplicateAccount = errors.New("duplicate account")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isUniqueViolation recognises unique-constraint failures from both
// supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		// extended codes keep the primary code in the low byte
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
