package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidIdentifier_Valid(t *testing.T) {
	valid := []string{
		"customers",
		"CUSTOMERS",
		"order_items",
		"_staging",
		"table$1",
		"public.customers",
		"RAW.PUBLIC.TRANSACTIONS",
	}

	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			assert.True(t, IsValidIdentifier(name))
		})
	}
}

func TestIsValidIdentifier_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"leading digit", "1table"},
		{"space", "my table"},
		{"semicolon injection", "t; DROP TABLE x"},
		{"quote", `t"x`},
		{"dash", "my-table"},
		{"empty part", "raw..customers"},
		{"trailing dot", "customers."},
		{"too many parts", "a.b.c.d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsValidIdentifier(tt.input))
		})
	}
}

func TestTableIdentifier(t *testing.T) {
	id, err := TableIdentifier("raw.public.customers")
	require.NoError(t, err)
	assert.Equal(t, "raw.public.customers", id)

	_, err = TableIdentifier("bad table")
	require.Error(t, err)
	var invalid *InvalidIdentifierError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "bad table", invalid.Name)
}

func TestTableStage(t *testing.T) {
	tests := []struct {
		table    string
		expected string
	}{
		{"customers", "@%customers"},
		{"public.customers", "@public.%customers"},
		{"RAW.PUBLIC.TRANSACTIONS", "@RAW.PUBLIC.%TRANSACTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			stage, err := TableStage(tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stage)
		})
	}

	_, err := TableStage("x'y")
	assert.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'file:///tmp/a.parquet'", QuoteLiteral("file:///tmp/a.parquet"))
	assert.Equal(t, `'it\'s'`, QuoteLiteral("it's"))
	assert.Equal(t, `'C:\\data'`, QuoteLiteral(`C:\data`))
	assert.Equal(t, "''", QuoteLiteral(""))
}

func TestInvalidIdentifierError_Error(t *testing.T) {
	err := &InvalidIdentifierError{Name: "bad-name"}
	assert.Contains(t, err.Error(), "invalid identifier: bad-name")
}
