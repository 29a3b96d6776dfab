package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/satishbabariya/tdal/internal/debug"
	"github.com/satishbabariya/tdal/runtime/tdalerr"
	"github.com/satishbabariya/tdal/schema"
)

// CreateTables returns one CREATE TABLE statement per entity of reg, referenced tables
// first. Foreign keys, primary keys and unique constraints are declared inline.
func CreateTables(reg *schema.Registry, provider string) ([]string, error) {
	provider, err := NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range tableOrder(reg) {
		stmt, err := createTable(reg, e, provider)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", e.Table, err)
		}
		out = append(out, stmt)
	}
	return out, nil
}

// Push creates the tables of reg. It does not diff or alter existing tables.
func Push(ctx context.Context, db *sql.DB, reg *schema.Registry, provider string) error {
	stmts, err := CreateTables(reg, provider)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		debug.Debug("ddl", "sql", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("push schema: %w", tdalerr.FromDriver(err, ""))
		}
	}
	return nil
}

// tableOrder sorts entities so that every table follows the tables its foreign keys
// reference. Cycles keep declaration order.
func tableOrder(reg *schema.Registry) []*schema.Entity {
	entities := reg.Entities()
	done := map[string]bool{}
	visiting := map[string]bool{}
	var out []*schema.Entity
	var visit func(e *schema.Entity)
	visit = func(e *schema.Entity) {
		if done[e.Name] || visiting[e.Name] {
			return
		}
		visiting[e.Name] = true
		for _, r := range e.Relations {
			if r.IsOwner() && r.Target != e.Name {
				if t, err := reg.GetEntity(r.Target); err == nil {
					visit(t)
				}
			}
		}
		visiting[e.Name] = false
		done[e.Name] = true
		out = append(out, e)
	}
	for _, e := range entities {
		visit(e)
	}
	return out
}

func createTable(reg *schema.Registry, e *schema.Entity, provider string) (string, error) {
	q := quoter(provider)
	pk := e.PrimaryKey()
	inlinePK := ""
	var lines []string
	for _, f := range e.Fields {
		typ, err := columnType(f, provider)
		if err != nil {
			return "", err
		}
		def := q(f.Column) + " " + typ
		auto := f.Default != nil && f.Default.Kind == schema.DefaultAutoIncrement
		switch {
		case auto && provider == "sqlite" && slices.Equal(pk.Fields, []string{f.Name}):
			// sqlite only autoincrements an inline INTEGER PRIMARY KEY.
			def += " PRIMARY KEY AUTOINCREMENT"
			inlinePK = f.Name
		case auto && provider == "mysql":
			def += " NOT NULL AUTO_INCREMENT"
		case !f.Nullable:
			def += " NOT NULL"
		}
		if !auto {
			if d := defaultClause(f, provider); d != "" {
				def += " DEFAULT " + d
			}
		}
		lines = append(lines, def)
	}

	if inlinePK == "" && len(pk.Fields) > 0 {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", q(pk.Name), columnList(e, pk.Fields, q)))
	}
	for _, u := range e.Uniques {
		if u.Primary {
			continue
		}
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", q(u.Name), columnList(e, u.Fields, q)))
	}
	for _, r := range e.Relations {
		if !r.IsOwner() {
			continue
		}
		target, err := reg.GetEntity(r.Target)
		if err != nil {
			return "", err
		}
		name := e.Table + "_" + strings.Join(columnNames(e, r.Fields), "_") + "_fkey"
		fk := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			q(name), columnList(e, r.Fields, q), q(target.Table), columnList(target, r.References, q))
		if a := referentialAction(r.OnDelete); a != "" {
			fk += " ON DELETE " + a
		}
		if a := referentialAction(r.OnUpdate); a != "" {
			fk += " ON UPDATE " + a
		}
		lines = append(lines, fk)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", q(e.Table), strings.Join(lines, ",\n  ")), nil
}

// columnType maps a field to the column type of provider.
func columnType(f *schema.Field, provider string) (string, error) {
	auto := f.Default != nil && f.Default.Kind == schema.DefaultAutoIncrement
	switch provider {
	case "postgresql":
		switch f.Type {
		case schema.Int:
			if auto {
				return "SERIAL", nil
			}
			return "INTEGER", nil
		case schema.BigInt:
			if auto {
				return "BIGSERIAL", nil
			}
			return "BIGINT", nil
		case schema.String, schema.EnumType:
			return "TEXT", nil
		case schema.Boolean:
			return "BOOLEAN", nil
		case schema.DateTime:
			return "TIMESTAMP(3)", nil
		case schema.Float:
			return "DOUBLE PRECISION", nil
		case schema.Decimal:
			return "DECIMAL(65,30)", nil
		case schema.Json:
			return "JSONB", nil
		case schema.Bytes:
			return "BYTEA", nil
		}
	case "mysql":
		switch f.Type {
		case schema.Int:
			return "INT", nil
		case schema.BigInt:
			return "BIGINT", nil
		case schema.String, schema.EnumType:
			return "VARCHAR(191)", nil
		case schema.Boolean:
			return "TINYINT(1)", nil
		case schema.DateTime:
			return "DATETIME(3)", nil
		case schema.Float:
			return "DOUBLE", nil
		case schema.Decimal:
			return "DECIMAL(65,30)", nil
		case schema.Json:
			return "JSON", nil
		case schema.Bytes:
			return "LONGBLOB", nil
		}
	case "sqlite":
		switch f.Type {
		case schema.Int, schema.BigInt, schema.Boolean:
			return "INTEGER", nil
		case schema.String, schema.EnumType, schema.Json:
			return "TEXT", nil
		case schema.DateTime:
			return "DATETIME", nil
		case schema.Float:
			return "REAL", nil
		case schema.Decimal:
			return "DECIMAL", nil
		case schema.Bytes:
			return "BLOB", nil
		}
	}
	return "", fmt.Errorf("no %s column type for %s field %s", provider, f.Type, f.Name)
}

// defaultClause renders literal and now() defaults. uuid() values are generated by the client.
func defaultClause(f *schema.Field, provider string) string {
	if f.Default == nil {
		return ""
	}
	switch f.Default.Kind {
	case schema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case schema.DefaultLiteral:
	default:
		return ""
	}
	switch v := f.Default.Value.(type) {
	case nil:
		return ""
	case string:
		if f.Type == schema.Json && provider == "mysql" {
			// MySQL only accepts expression defaults on JSON columns.
			return "(" + quoteString(v) + ")"
		}
		return quoteString(v)
	case bool:
		if provider == "postgresql" {
			return strings.ToUpper(strconv.FormatBool(v))
		}
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return quoteString(fmt.Sprint(f.Default.Value))
}

func referentialAction(a schema.ReferentialAction) string {
	switch a {
	case schema.Cascade:
		return "CASCADE"
	case schema.Restrict:
		return "RESTRICT"
	case schema.NoAction:
		return "NO ACTION"
	case schema.SetNull:
		return "SET NULL"
	case schema.SetDefault:
		return "SET DEFAULT"
	}
	return ""
}

func quoter(provider string) func(string) string {
	if provider == "mysql" {
		return func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
	}
	return func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func columnNames(e *schema.Entity, fields []string) []string {
	out := make([]string, len(fields))
	for i, name := range fields {
		out[i] = name
		if f, ok := e.Field(name); ok {
			out[i] = f.Column
		}
	}
	return out
}

func columnList(e *schema.Entity, fields []string, q func(string) string) string {
	cols := columnNames(e, fields)
	for i, c := range cols {
		cols[i] = q(c)
	}
	return strings.Join(cols, ", ")
}
