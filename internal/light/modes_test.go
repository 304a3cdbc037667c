// SPDX-License-Identifier: MIT
package light

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogueIsValid(t *testing.T) {
	modes := Modes()
	require.Len(t, modes, 6)

	seen := map[string]bool{}
	for _, m := range modes {
		assert.NoError(t, m.Validate(), m.Name)
		assert.False(t, seen[m.Name], "duplicate mode %s", m.Name)
		seen[m.Name] = true
	}
	for _, name := range []string{"alpha", "theta", "gamma", "cinematic", "journey-descent", "journey-drift"} {
		assert.True(t, seen[name], name)
	}
}

func TestModesReturnsCopies(t *testing.T) {
	m := Modes()
	m[4].Phases[0].Duration = 1

	again, err := LookupMode("journey-descent")
	require.NoError(t, err)
	assert.Equal(t, 240.0, again.Phases[0].Duration)
}

func TestLookupMode(t *testing.T) {
	m, err := LookupMode("ALPHA")
	require.NoError(t, err)
	assert.Equal(t, Continuous, m.Kind)
	assert.Equal(t, 8.0, m.BandLow)
	assert.Equal(t, 12.0, m.BandHigh)

	_, err = LookupMode("delta")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestJourneyDurations(t *testing.T) {
	d, err := LookupMode("journey-descent")
	require.NoError(t, err)
	assert.Equal(t, 960.0, d.Duration())

	c, err := LookupMode("cinematic")
	require.NoError(t, err)
	assert.Zero(t, c.Duration())
}

func TestOnlyCinematicIsAudioReactive(t *testing.T) {
	for _, m := range Modes() {
		assert.Equal(t, m.Name == "cinematic", m.AudioReactive, m.Name)
	}
}
