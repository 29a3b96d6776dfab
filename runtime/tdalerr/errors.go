// Package tdalerr defines the error taxonomy shared by every layer of the data-access client.
package tdalerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnknownEntity
	KindUnknownField
	KindUnknownRelation
	KindInvalidComparator
	KindInvalidGroupBy
	KindInvalidArgument
	KindSchemaInvalid
	KindNotFound
	KindIntegrityViolation
	KindTransactionAborted
	KindTimeout
	KindBackendUnavailable
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindUnknownEntity:      "unknown entity",
	KindUnknownField:       "unknown field",
	KindUnknownRelation:    "unknown relation",
	KindInvalidComparator:  "invalid comparator",
	KindInvalidGroupBy:     "invalid groupBy",
	KindInvalidArgument:    "invalid argument",
	KindSchemaInvalid:      "invalid schema",
	KindNotFound:           "record not found",
	KindIntegrityViolation: "integrity violation",
	KindTransactionAborted: "transaction aborted",
	KindTimeout:            "timeout",
	KindBackendUnavailable: "backend unavailable",
}

// String returns the human readable kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Sentinel errors. Match with errors.Is.
var (
	ErrUnknownEntity      = &sentinel{KindUnknownEntity}
	ErrUnknownField       = &sentinel{KindUnknownField}
	ErrUnknownRelation    = &sentinel{KindUnknownRelation}
	ErrInvalidComparator  = &sentinel{KindInvalidComparator}
	ErrInvalidGroupBy     = &sentinel{KindInvalidGroupBy}
	ErrInvalidArgument    = &sentinel{KindInvalidArgument}
	ErrSchemaInvalid      = &sentinel{KindSchemaInvalid}
	ErrNotFound           = &sentinel{KindNotFound}
	ErrIntegrityViolation = &sentinel{KindIntegrityViolation}
	ErrTransactionAborted = &sentinel{KindTransactionAborted}
	ErrTimeout            = &sentinel{KindTimeout}
	ErrBackendUnavailable = &sentinel{KindBackendUnavailable}
)

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return s.kind.String() }

// ViolationType narrows an integrity violation.
type ViolationType string

const (
	ViolationUnique      ViolationType = "unique"
	ViolationForeignKey  ViolationType = "foreign key"
	ViolationNotNull     ViolationType = "not null"
	ViolationCheck       ViolationType = "check"
	ViolationCardinality ViolationType = "cardinality"
)

// Error is the concrete error returned by the client.
type Error struct {
	Kind     Kind
	Entity   string
	Field    string
	Relation string
	// Constraint names the violated constraint. Fields lists its fields, or its columns when
	// the driver reported no name.
	Constraint string
	Fields     []string
	Violation  ViolationType
	// Value is the conflicting value; a map of field to value for composite constraints.
	Value   any
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Violation != "" {
		fmt.Fprintf(&b, " (%s)", e.Violation)
	}
	var ctx []string
	if e.Entity != "" {
		ctx = append(ctx, "entity "+e.Entity)
	}
	if e.Field != "" {
		ctx = append(ctx, "field "+e.Field)
	} else if len(e.Fields) > 0 {
		ctx = append(ctx, "fields "+strings.Join(e.Fields, ", "))
	}
	if e.Relation != "" {
		ctx = append(ctx, "relation "+e.Relation)
	}
	if e.Constraint != "" {
		ctx = append(ctx, "constraint "+e.Constraint)
	}
	if e.Value != nil {
		ctx = append(ctx, fmt.Sprintf("value %v", e.Value))
	}
	if len(ctx) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if s, ok := target.(*sentinel); ok {
		return s.kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UnknownEntity reports a missing entity.
func UnknownEntity(name string) *Error {
	return &Error{Kind: KindUnknownEntity, Entity: name}
}

// UnknownField reports a missing field on entity.
func UnknownField(entity, field string) *Error {
	return &Error{Kind: KindUnknownField, Entity: entity, Field: field}
}

// UnknownRelation reports a missing relation on entity.
func UnknownRelation(entity, relation string) *Error {
	return &Error{Kind: KindUnknownRelation, Entity: entity, Relation: relation}
}

// InvalidComparator reports a comparator that cannot be applied to field.
func InvalidComparator(entity, field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidComparator, Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidGroupBy reports a groupBy whose having or orderBy escapes the by list.
func InvalidGroupBy(entity, field, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidGroupBy, Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports malformed caller input.
func InvalidArgument(entity, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports that no row matched.
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity}
}

// CardinalityViolation reports a to-one relation that resolved to several rows.
func CardinalityViolation(entity, relation string, value any, matches int) *Error {
	return &Error{
		Kind:      KindIntegrityViolation,
		Violation: ViolationCardinality,
		Entity:    entity,
		Relation:  relation,
		Value:     value,
		Message:   fmt.Sprintf("expected at most one related row, got %d", matches),
	}
}

// TransactionAborted wraps the failure that rolled a transaction back.
func TransactionAborted(cause error) *Error {
	return &Error{Kind: KindTransactionAborted, Cause: cause}
}

// Timeout reports an exceeded wait or transaction deadline.
func Timeout(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

// BackendUnavailable wraps a transport failure.
func BackendUnavailable(cause error) *Error {
	return &Error{Kind: KindBackendUnavailable, Cause: cause}
}

// SchemaError collects every problem found while validating a schema.
type SchemaError struct {
	Problems []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid schema: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid schema: %d problems:\n  - %s", len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Is matches ErrSchemaInvalid.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaInvalid
}

// Add appends a problem.
func (e *SchemaError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns nil when no problems were recorded.
func (e *SchemaError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsIntegrityViolation reports whether err is an integrity violation.
func IsIntegrityViolation(err error) bool { return errors.Is(err, ErrIntegrityViolation) }

// IsUniqueViolation reports whether err, or any error it wraps, is a unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if e, ok := err.(*Error); ok && e.Kind == KindIntegrityViolation && e.Violation == ViolationUnique {
			return true
		}
	}
	return false
}

// IsValidation reports whether err was raised before any I/O.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindUnknownEntity, KindUnknownField, KindUnknownRelation,
		KindInvalidComparator, KindInvalidGroupBy, KindInvalidArgument:
		return true
	}
	return false
}
