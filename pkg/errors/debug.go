package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetails is the server-side part of a Postgres error.
type PGDetails struct {
	SQLState   string `json:"sqlstate"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// postgresDetails looks for a pgx or lib/pq error anywhere in the chain.
func postgresDetails(err error) (PGDetails, bool) {
	if pgxErr := (*pgconn.PgError)(nil); stdErrors.As(err, &pgxErr) {
		return PGDetails{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	if pqErr := (*pq.Error)(nil); stdErrors.As(err, &pqErr) {
		return PGDetails{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGDetails{}, false
}

type sqlStateRule struct {
	code    Code
	message string
}

var sqlStateRules = map[string]sqlStateRule{
	"23505": {CodeConflict, "conflicts with existing data"},
	"23503": {CodeIntegrity, "references missing data"},
	"23502": {CodeIntegrity, "missing required data"},
	"23514": {CodeIntegrity, "violates a data constraint"},
	"40001": {CodeDependency, "database serialization failure"},
	"40P01": {CodeDependency, "database deadlock"},
	"57014": {CodeDependency, "database statement cancelled"},
}

// Classify returns err as an *Error. Untyped Postgres failures get a code
// from their SQLSTATE; anything else becomes CodeInternal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if pg, ok := postgresDetails(err); ok {
		if rule, ok := sqlStateRules[pg.SQLState]; ok {
			return Wrap(rule.code, err, rule.message)
		}
		// Class 08 is connection trouble.
		if strings.HasPrefix(pg.SQLState, "08") {
			return Wrap(CodeDependency, err, "database connection failure")
		}
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// ErrorDump is a flattened, log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string     `json:"top_message"`
	Code       Code       `json:"code,omitempty"`
	HTTPStatus int        `json:"http_status,omitempty"`
	Retryable  bool       `json:"retryable,omitempty"`
	Chain      []string   `json:"chain,omitempty"`
	Postgres   *PGDetails `json:"postgres,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	dump := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		meta := MetadataFor(typed.Code())
		dump.Code, dump.HTTPStatus, dump.Retryable = typed.Code(), meta.HTTPStatus, meta.Retryable
	}
	for link := err; link != nil; link = stdErrors.Unwrap(link) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	if pg, ok := postgresDetails(err); ok {
		dump.Postgres = &pg
	}
	return dump
}
