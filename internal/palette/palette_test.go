package palette

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Color
	}{
		{name: "digit zero", input: "0", want: Black},
		{name: "digit five", input: "5", want: Red},
		{name: "upper hex digit", input: "F", want: Fuchsia},
		{name: "lower hex digit", input: "a", want: Teal},
		{name: "name", input: "NAVY", want: Navy},
		{name: "mixed case name", input: "Silver", want: Silver},
		{name: "padded name", input: "  white ", want: White},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, input := range []string{"", "G", "16", "pink", "-1"} {
		_, err := Parse(input)
		assert.True(t, errors.Is(err, ErrUnknownColor), "input %q", input)
	}
}

func TestColorIdentity(t *testing.T) {
	all := All()
	require.Len(t, all, Count)

	seen := make(map[string]bool)
	for i, c := range all {
		assert.Equal(t, Color(i), c)
		assert.True(t, c.Valid())
		assert.False(t, seen[c.String()], "duplicate name %s", c)
		seen[c.String()] = true

		// Digit and name both round-trip through Parse
		byDigit, err := Parse(c.Digit())
		require.NoError(t, err)
		assert.Equal(t, c, byDigit)

		byName, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, byName)
	}
}

func TestRGB(t *testing.T) {
	assert.Equal(t, RGB{255, 0, 0}, Red.RGB())
	assert.Equal(t, "#ffffff", White.RGB().Hex())
	assert.Equal(t, "#000080", Navy.RGB().Hex())
	assert.Equal(t, White, Baseline)
}

func TestInvalidColor(t *testing.T) {
	c := Color(16)
	assert.False(t, c.Valid())
	assert.Equal(t, "Color(16)", c.String())
	assert.Equal(t, "?", c.Digit())
	assert.Equal(t, RGB{}, c.RGB())
}
