package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(16)
	require.NoError(t, err)
	assert.Len(t, code, 32) // hex doubles the byte count
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(16)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestGenerateNumericRef(t *testing.T) {
	ref, err := GenerateNumericRef(8)
	require.NoError(t, err)
	assert.Len(t, ref, 8)
	assert.Regexp(t, "^[0-9]+$", ref)
}
