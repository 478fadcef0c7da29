package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{"empty", "", nil},
		{"dot decimal", "10.50", ptr(10.50)},
		{"comma decimal", "10,50", ptr(10.50)},
		{"integer", "10", ptr(10.0)},
		{"padded", "  7,25  ", ptr(7.25)},
		{"garbage is silently ignored", "abc", nil},
		{"partial garbage is silently ignored", "12x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAmount(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestSanitizeNext(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "/"},
		{"/nuevo", "/nuevo"},
		{"/resumen", "/resumen"},
		{"https://evil.example", "/"},
		{"//evil.example", "/"},
		{"nuevo", "/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeNext(tt.input), "input %q", tt.input)
	}
}

func ptr(f float64) *float64 { return &f }
