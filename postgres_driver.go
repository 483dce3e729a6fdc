package eventstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

const postgresUniqueViolation = "23505"

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	quote:       pq.QuoteIdentifier,
	isDuplicate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == postgresUniqueViolation
	},
}

// MustConnectPostgres opens and pings a Postgres database
func MustConnectPostgres(url string) *sql.DB {
	db, err := sql.Open("postgres", url)
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	err = db.Ping()
	if err != nil {
		panic(fmt.Sprintf("Failed connecting to the database: %v", err))
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(4)
	return db
}

// NewPostgresDriver creates a new PostgresDriver
func NewPostgresDriver(db *sql.DB, table string) *PostgresDriver {
	return &PostgresDriver{sqlDriver{DB: db, Table: table, dialect: postgresDialect}}
}

// PostgresDriver implementation for deployed environments
type PostgresDriver struct {
	sqlDriver
}
