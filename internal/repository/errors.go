// Package repository is the MySQL implementation of the store contract.
// Repositories take a DBTX so the same code runs on the pool or inside a
// transaction opened by Store.WithinTx. Lookups that match nothing return
// store.ErrNotFound and unique key violations return store.ErrDuplicate;
// every other driver error is wrapped with "db error".
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/eventdesk/internal/store"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// dbErr translates driver errors into store sentinels.
func dbErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

// expectOne turns a zero rows-affected result into store.ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
