// Package soql assembles SOQL query strings for the Salesforce query APIs.
//
// Queries are plain text on the wire, so this package is string assembly
// plus the validation the query APIs will not do for us. Values are always
// single-quoted; embedded quotes are backslash-escaped.
package soql

import (
	"strings"
)

// Condition is a single WHERE-clause predicate. Exactly one of the two
// forms applies: a scalar equality or an IN-list membership test.
type Condition struct {
	Field string
	Value string   // scalar form: Field = 'Value'
	In    []string // list form: Field IN ('a', 'b'); wins when non-nil
}

// Eq builds a scalar equality condition.
func Eq(field, value string) Condition {
	return Condition{Field: field, Value: value}
}

// In builds an IN-list membership condition.
func In(field string, values []string) Condition {
	return Condition{Field: field, In: values}
}

// Build assembles a SELECT statement:
//
//	SELECT col1, col2 FROM table WHERE a = 'x' AND b IN ('y', 'z')
//
// The WHERE clause is omitted entirely when no conditions are given.
// Conditions are joined with AND in the order supplied.
// Returns a BuildError with ErrCodeInvalidQuerySpec if the column list or
// table name is empty.
func Build(columns []string, table string, where ...Condition) (string, error) {
	if len(columns) == 0 {
		return "", &BuildError{
			Code:    ErrCodeInvalidQuerySpec,
			Message: "column list cannot be empty",
		}
	}
	if table == "" {
		return "", &BuildError{
			Code:    ErrCodeInvalidQuerySpec,
			Message: "table name cannot be empty",
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(table)

	if len(where) > 0 {
		parts := make([]string, len(where))
		for i, cond := range where {
			parts[i] = cond.render()
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	return b.String(), nil
}

// render formats a single condition as a WHERE-clause fragment.
func (c Condition) render() string {
	if c.In != nil {
		quoted := make([]string, len(c.In))
		for i, v := range c.In {
			quoted[i] = quote(v)
		}
		return c.Field + " IN (" + strings.Join(quoted, ", ") + ")"
	}
	return c.Field + " = " + quote(c.Value)
}

// quote wraps a value in single quotes, escaping embedded quotes.
// SOQL uses backslash escaping inside string literals.
func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}

// ExtractTable returns the table name a query selects from: the first
// whitespace-delimited token after the FROM keyword, matched
// case-insensitively. The bulk query API needs the table name up front
// when a job is created, and the query text is the only place it appears.
// Returns a BuildError with ErrCodeMalformedQuery if no FROM clause is
// present.
func ExtractTable(query string) (string, error) {
	idx := strings.Index(strings.ToUpper(query), "FROM")
	if idx == -1 {
		return "", &BuildError{
			Code:    ErrCodeMalformedQuery,
			Message: "no FROM clause found in query",
		}
	}

	rest := strings.TrimSpace(query[idx+len("FROM"):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", &BuildError{
			Code:    ErrCodeMalformedQuery,
			Message: "FROM clause names no table",
		}
	}
	return fields[0], nil
}
