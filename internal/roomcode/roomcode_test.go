package roomcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministic(t *testing.T) {
	d := New("test-secret")

	code := d.Generate("conv-1")
	require.Len(t, code, CodeLength)
	assert.Equal(t, code, d.Generate("conv-1"))
	assert.Equal(t, strings.ToLower(code), code)
}

func TestGenerateDiffersPerConversation(t *testing.T) {
	d := New("test-secret")

	assert.NotEqual(t, d.Generate("conv-1"), d.Generate("conv-2"))
}

func TestGenerateDependsOnSecret(t *testing.T) {
	a := New("secret-a")
	b := New("secret-b")

	assert.NotEqual(t, a.Generate("conv-1"), b.Generate("conv-1"))
}

func TestValidate(t *testing.T) {
	d := New("test-secret")
	code := d.Generate("conv-1")

	tests := []struct {
		name      string
		candidate string
		want      bool
	}{
		{"exact match", code, true},
		{"uppercase match", strings.ToUpper(code), true},
		{"surrounding whitespace", "  " + code + "\n", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"wrong code", "zzzzzzzz", false},
		{"truncated", code[:4], false},
		{"other conversation's code", d.Generate("conv-2"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Validate("conv-1", tt.candidate))
		})
	}
}
