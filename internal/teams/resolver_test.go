package teams

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Boston Celtics", "BOS"},
		{"  Denver Nuggets* ", "DEN"},
		{"seattle supersonics", "SEA"},
		{"Oklahoma City Thunder", "OKC"},
		{"New Jersey Nets", "NJN"},
		{"Brooklyn Nets", "BRK"},
		{"New Orleans/Oklahoma City Hornets", "NOK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnknownIsExplicit(t *testing.T) {
	code, err := Resolve("Springfield Isotopes")
	assert.Empty(t, code)
	assert.True(t, errors.Is(err, ErrUnknownTeam))

	_, ok := Lookup("Springfield Isotopes")
	assert.False(t, ok)
}

func TestResolveSeasonDisambiguatesCharlotte(t *testing.T) {
	old, err := ResolveSeason("Charlotte Hornets", 1995)
	require.NoError(t, err)
	assert.Equal(t, "CHH", old)

	current, err := ResolveSeason("Charlotte Hornets*", 2016)
	require.NoError(t, err)
	assert.Equal(t, "CHO", current)

	bobcats, err := ResolveSeason("Charlotte Bobcats", 2010)
	require.NoError(t, err)
	assert.Equal(t, "CHA", bobcats)
}

func TestRelocationsGetDistinctCodes(t *testing.T) {
	sea, _ := Lookup("Seattle SuperSonics")
	okc, _ := Lookup("Oklahoma City Thunder")
	assert.NotEqual(t, sea, okc)

	van, _ := Lookup("Vancouver Grizzlies")
	mem, _ := Lookup("Memphis Grizzlies")
	assert.NotEqual(t, van, mem)
}

func TestIsMultiTeam(t *testing.T) {
	for _, code := range []string{"2TM", "3tm", "TOT", "5TM"} {
		assert.True(t, IsMultiTeam(code), code)
	}
	assert.False(t, IsMultiTeam("BOS"))
}
