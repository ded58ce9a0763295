package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warranty/internal/apperr"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in     string
		prefix string
		number int64
	}{
		{"First1", "First", 1},
		{"Test123", "Test", 123},
		{"First007", "First", 7},
		{"1234", "", 1234},
		{"AB-CD-42", "AB-CD-", 42},
		{"  New1 ", "New", 1},
		{"X9223372036854775807", "X", 9223372036854775807},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			prefix, n, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.prefix, prefix)
			assert.Equal(t, tc.number, n)
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "First", "Fi1rst2", "First12a", "X9223372036854775808"} {
		t.Run(in, func(t *testing.T) {
			_, _, err := Parse(in)
			assert.ErrorIs(t, err, apperr.ErrInvalidSerialNumber)
		})
	}
}

func TestValidPrefix(t *testing.T) {
	assert.True(t, ValidPrefix("First"))
	assert.True(t, ValidPrefix(""))
	assert.True(t, ValidPrefix("AB-"))
	assert.False(t, ValidPrefix("A1"))
	assert.False(t, ValidPrefix(" First"))
}
