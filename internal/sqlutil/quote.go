// Package sqlutil provides SQL utility functions for GoIngest.
package sqlutil

import (
	"regexp"
	"strings"
)

// validIdentifierRegex matches one unquoted Snowflake identifier part.
// Unquoted identifiers resolve case-insensitively, so table names are never
// wrapped in double quotes.
var validIdentifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// IsValidIdentifier checks if a name is a valid, optionally qualified, table identifier.
// Accepted forms: table, schema.table, database.schema.table.
func IsValidIdentifier(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 3 {
		return false
	}
	for _, p := range parts {
		if !validIdentifierRegex.MatchString(p) {
			return false
		}
	}
	return true
}

// TableIdentifier validates name and returns it for use in a statement.
func TableIdentifier(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return name, nil
}

// TableStage returns the table stage reference for a validated table name.
// Example: "customers" -> "@%customers"
// Example: "raw.public.customers" -> "@raw.public.%customers"
func TableStage(table string) (string, error) {
	if _, err := TableIdentifier(table); err != nil {
		return "", err
	}
	if i := strings.LastIndex(table, "."); i >= 0 {
		return "@" + table[:i+1] + "%" + table[i+1:], nil
	}
	return "@%" + table, nil
}

// QuoteLiteral wraps s in single quotes, escaping backslashes and quotes.
// Example: "it's" -> "'it\'s'"
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must be [database.][schema.]table using letters, digits, '_' and '$')"
}
