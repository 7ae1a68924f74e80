package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit":  map[string]any{"type": "integer", "minimum": 0},
			"status": map[string]any{"type": "string", "enum": []string{"all", "open", "closed"}},
		},
		"required": []any{"status"},
	}

	tests := []struct {
		name      string
		params    map[string]any
		wantField string
	}{
		{"ok", map[string]any{"status": "open", "limit": float64(5)}, ""},
		{"extra fields allowed", map[string]any{"status": "all", "other": true}, ""},
		{"missing required", map[string]any{"limit": float64(1)}, "status"},
		{"wrong type", map[string]any{"status": "open", "limit": "five"}, "limit"},
		{"fractional integer", map[string]any{"status": "open", "limit": 1.5}, "limit"},
		{"enum violation", map[string]any{"status": "pending"}, "status"},
		{"below minimum", map[string]any{"status": "open", "limit": float64(-1)}, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}
