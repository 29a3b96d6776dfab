package tdalerr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PostgreSQL SQLSTATE codes (class 23 and 08).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgConnectionClass     = "08"
)

// MySQL error numbers.
const (
	mysqlBadNull          = 1048
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolation   = 3819
)

var (
	pgKeyDetail       = regexp.MustCompile(`Key \((.+?)\)=\((.*?)\)`)
	mysqlDupEntry     = regexp.MustCompile(`Duplicate entry '(.*)' for key '(.+?)'`)
	mysqlFKConstraint = regexp.MustCompile("CONSTRAINT `([^`]+)`")
	mysqlBadNullCol   = regexp.MustCompile(`Column '(.+?)' cannot be null`)
	sqliteConstraint  = regexp.MustCompile(`(UNIQUE|NOT NULL|CHECK) constraint failed: ([^\s(,]+(?:, [^\s(,]+)*)`)
)

// FromDriver converts an error returned by a database/sql driver into an *Error.
// Errors that are already classified, and errors it cannot classify, are returned unchanged.
func FromDriver(err error, entity string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Entity: entity, Message: "deadline exceeded", Cause: err}
	}
	if v := integrity(err); v != nil {
		v.Entity = entity
		return v
	}
	if isUnavailable(err) {
		return BackendUnavailable(err)
	}
	return err
}

func integrity(err error) *Error {
	if pe, ok := asError[*pq.Error](err); ok {
		return fromSQLState(string(pe.Code), pe.Constraint, pe.Column, pe.Detail, err)
	}
	if pe, ok := asError[*pgconn.PgError](err); ok {
		return fromSQLState(pe.Code, pe.ConstraintName, pe.ColumnName, pe.Detail, err)
	}
	if me, ok := asError[*mysql.MySQLError](err); ok {
		return fromMySQL(me, err)
	}
	return fromSQLite(err)
}

func fromSQLState(code, constraint, column, detail string, cause error) *Error {
	var vt ViolationType
	switch code {
	case pgUniqueViolation:
		vt = ViolationUnique
	case pgForeignKeyViolation:
		vt = ViolationForeignKey
	case pgNotNullViolation:
		vt = ViolationNotNull
	case pgCheckViolation:
		vt = ViolationCheck
	default:
		return nil
	}
	e := &Error{Kind: KindIntegrityViolation, Violation: vt, Constraint: constraint, Field: column, Cause: cause}
	if m := pgKeyDetail.FindStringSubmatch(detail); m != nil {
		e.Fields = splitColumns(m[1])
		if e.Field == "" && len(e.Fields) == 1 {
			e.Field = e.Fields[0]
		}
		e.Value = m[2]
	}
	return e
}

func fromMySQL(me *mysql.MySQLError, cause error) *Error {
	e := &Error{Kind: KindIntegrityViolation, Cause: cause}
	switch me.Number {
	case mysqlDuplicateEntry:
		e.Violation = ViolationUnique
		if m := mysqlDupEntry.FindStringSubmatch(me.Message); m != nil {
			e.Value = m[1]
			e.Constraint = m[2]
		}
	case mysqlForeignKeyParent, mysqlForeignKeyChild:
		e.Violation = ViolationForeignKey
		if m := mysqlFKConstraint.FindStringSubmatch(me.Message); m != nil {
			e.Constraint = m[1]
		}
	case mysqlBadNull:
		e.Violation = ViolationNotNull
		if m := mysqlBadNullCol.FindStringSubmatch(me.Message); m != nil {
			e.Field = m[1]
		}
	case mysqlCheckViolation:
		e.Violation = ViolationCheck
	default:
		return nil
	}
	return e
}

// fromSQLite matches on the message text, which is identical for the cgo and pure Go drivers.
func fromSQLite(err error) *Error {
	msg := err.Error()
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return &Error{Kind: KindIntegrityViolation, Violation: ViolationForeignKey, Cause: err}
	}
	m := sqliteConstraint.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	e := &Error{Kind: KindIntegrityViolation, Constraint: m[2], Cause: err}
	switch m[1] {
	case "UNIQUE":
		e.Violation = ViolationUnique
	case "NOT NULL":
		e.Violation = ViolationNotNull
	case "CHECK":
		e.Violation = ViolationCheck
	}
	if e.Violation != ViolationCheck {
		for _, col := range splitColumns(m[2]) {
			if i := strings.LastIndex(col, "."); i >= 0 {
				col = col[i+1:]
			}
			e.Fields = append(e.Fields, col)
		}
		if len(e.Fields) == 1 {
			e.Field = e.Fields[0]
		}
	}
	return e
}

// splitColumns splits a driver's comma-separated column list, dropping identifier quotes.
func splitColumns(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(strings.TrimSpace(p), "\"`"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if pe, ok := asError[*pq.Error](err); ok {
		return strings.HasPrefix(string(pe.Code), pgConnectionClass)
	}
	if pe, ok := asError[*pgconn.PgError](err); ok {
		return strings.HasPrefix(pe.Code, pgConnectionClass)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// asError is errors.As returning the target.
func asError[T any](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
