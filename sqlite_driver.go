package eventstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	quote: func(identifier string) string {
		return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
	},
	isDuplicate: func(err error) bool {
		var sqliteErr *sqlite.Error
		return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	},
}

// MustConnectSQLite opens a SQLite database. A single connection is kept
// open: SQLite allows one writer, and ":memory:" databases live per
// connection.
func MustConnectSQLite(dataSourceName string) *sql.DB {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		panic(fmt.Sprintf("Failed opening the database: %v", err))
	}
	db.SetMaxOpenConns(1)
	return db
}

// NewSQLiteDriver creates a new SQLiteDriver
func NewSQLiteDriver(db *sql.DB, table string) *SQLiteDriver {
	return &SQLiteDriver{sqlDriver{DB: db, Table: table, dialect: sqliteDialect}}
}

// SQLiteDriver implementation for single-host deployments and tests
type SQLiteDriver struct {
	sqlDriver
}
