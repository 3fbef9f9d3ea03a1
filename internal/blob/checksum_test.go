package blob

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeChecksum verifies SHA-256 checksum computation.
func TestComputeChecksum(t *testing.T) {
	data := []byte("schedule section")
	sum := ComputeChecksum(data)

	assert.Equal(t, sum, ComputeChecksum(data))
	assert.NotEqual(t, sum, ComputeChecksum([]byte("schedule sectioN")))
	assert.Len(t, sum, ChecksumSize)
}

func TestValidateChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("a"))
	require.NoError(t, ValidateChecksum(sum, sum))

	other := ComputeChecksum([]byte("b"))
	err := ValidateChecksum(sum, other)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", false},
		{"plain", "conv1/weights", false},
		{"max length", strings.Repeat("a", MaxNameLen), false},
		{"too long", strings.Repeat("a", MaxNameLen+1), true},
		{"null byte", "conv\x00weights", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
