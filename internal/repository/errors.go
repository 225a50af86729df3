// Package repository defines the storage contract of the auth core and its
// MySQL and in-memory implementations.  Sentinel errors let the service
// layer distinguish lookup misses and uniqueness violations from
// infrastructure failures.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.  Callers map it to
// the domain error that fits the operation (invalid credentials, invalid
// token, 404).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a unique key, such as a
// duplicate email or username.  Handlers translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
