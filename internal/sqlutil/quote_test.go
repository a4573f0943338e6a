package sqlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdentifier_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple table name",
			input:    "users",
			expected: "`users`",
		},
		{
			name:     "Table with underscore",
			input:    "order_items",
			expected: "`order_items`",
		},
		{
			name:     "Mixed case",
			input:    "MyTable",
			expected: "`MyTable`",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "``",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestQuoteIdentifier_EscapeBackticks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Single backtick",
			input:    "my`table",
			expected: "`my``table`",
		},
		{
			name:     "Backtick at start",
			input:    "`table",
			expected: "```table`",
		},
		{
			name:     "Only backticks",
			input:    "```",
			expected: "````````",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestQuoteANSI(t *testing.T) {
	assert.Equal(t, `"movies"`, QuoteANSI("movies"))
	assert.Equal(t, `"my""table"`, QuoteANSI(`my"table`))
	assert.Equal(t, `"has space"`, QuoteANSI("has space"))
	assert.Equal(t, `"a`+"`"+`b"`, QuoteANSI("a`b"))
}
