package eventstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

const mysqlDuplicateEntry = 1062

var mysqlDialect = dialect{
	name:        "mysql",
	placeholder: func(int) string { return "?" },
	quote: func(identifier string) string {
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	},
	isDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
	},
}

// NewMySQLDriver creates a new MySQLDriver
func NewMySQLDriver(client *sql.DB, tableName string) *MySQLDriver {
	return &MySQLDriver{sqlDriver{DB: client, Table: tableName, dialect: mysqlDialect}}
}

// MySQLDriver implementation for deployed environments
type MySQLDriver struct {
	sqlDriver
}

// MustConnectMySQL .
func MustConnectMySQL(dataSourceName string) *sql.DB {
	client, err := sql.Open("mysql", dataSourceName)
	if err != nil {
		log.
			Fatal().
			Err(err).
			Msgf("Failed to connect")
	}
	return client
}
