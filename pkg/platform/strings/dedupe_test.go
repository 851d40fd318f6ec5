package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil input", nil, nil},
		{"empty input", []string{}, []string{}},
		{"removes duplicates and blanks", []string{"  NL1B01 ", "NL1B02", "NL1B01", "", "  "}, []string{"NL1B01", "NL1B02"}},
		{"preserves order", []string{"c", "a", "b", "a"}, []string{"c", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "12345678", Compact("12 345 678"))
	assert.Equal(t, "12345678", Compact("12-345-678"))
	assert.Equal(t, "NL123456789B01", Compact("nl 123456789 b01"))
	assert.Equal(t, "", Compact(" \t- "))
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "acme holding", CollapseSpace("  acme \n\t holding "))
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "acme holding bv", FoldName("ACME, Holding B.V."))
	assert.Equal(t, "acme holding bv", FoldName("Acme   Holding (B.V.)"))
	assert.Equal(t, FoldName("Café Noir"), FoldName("CAFÉ NOIR"))
}
