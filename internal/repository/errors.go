// Package repository implements the seat ledger on MySQL.  Repositories
// follow the usual split: plain methods run on the pool, ...Tx methods run
// inside a caller-owned *sql.Tx.  MySQL error codes are translated to the
// ledger sentinels so callers never inspect driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	errDuplicateEntry  = 1062 // ER_DUP_ENTRY
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

func mysqlCode(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool   { return mysqlCode(err) == errDuplicateEntry }
func isLockTimeout(err error) bool { return mysqlCode(err) == errLockWaitTimeout }

// isDuplicateOn reports a duplicate entry on the named unique index.  The
// server names the index at the end of the message, e.g. "Duplicate entry
// 'PNR-1A2B3C4D' for key 'bookings.uq_bookings_reference'".
func isDuplicateOn(err error, index string) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != errDuplicateEntry {
		return false
	}
	return strings.Contains(me.Message, index)
}
