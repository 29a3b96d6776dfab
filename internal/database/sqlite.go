package database

import (
	"database/sql"
	"database/sql/driver"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"

	"github.com/satishbabariya/tdal/query/ast"
)

// sqlite3Unicode is the go-sqlite3 driver with the Unicode lower() installed.
const sqlite3Unicode = "sqlite3_unicode"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("lower", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		return lowerText(args[0]), nil
	})
	sql.Register(sqlite3Unicode, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", lowerText, true)
		},
	})
}

// lowerText replaces SQLite's lower(), which only maps ASCII letters, so insensitive filters
// match the same rows in SQL and in ast.Evaluate.
func lowerText(v any) any {
	switch v := v.(type) {
	case string:
		return ast.FoldCase(v)
	case []byte:
		if v == nil {
			return nil
		}
		return ast.FoldCase(string(v))
	}
	return v
}

// openName is the name sql.Open is called with for driver.
func openName(driver string) string {
	if driver == "sqlite3" {
		return sqlite3Unicode
	}
	return driver
}
