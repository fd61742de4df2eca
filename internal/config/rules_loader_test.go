package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePresets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRulePresets(t *testing.T) {
	path := writePresets(t, `
default: t20
presets:
  t20:
    overs_per_innings: 20
    max_overs_per_bowler: 4
  odi:
    overs_per_innings: 50
    max_overs_per_bowler: 10
    powerplay_overs: 10
  short:
    overs_per_innings: 5
    balls_per_over: 4
    require_keeper: false
`)
	presets, err := LoadRulePresets(path)
	require.NoError(t, err)

	t20, ok := presets.Rules("t20")
	require.True(t, ok)
	assert.Equal(t, 20, t20.OversPerInnings)
	assert.Equal(t, 6, t20.BallsPerOver, "unset fields keep defaults")
	assert.Equal(t, 4, t20.MaxOversPerBowler)

	odi, ok := presets.Rules("odi")
	require.True(t, ok)
	assert.Equal(t, 50, odi.OversPerInnings)
	assert.Equal(t, 10, odi.PowerplayOvers)

	short, ok := presets.Rules("short")
	require.True(t, ok)
	assert.Equal(t, 4, short.BallsPerOver)
	assert.False(t, short.RequireKeeper)

	def, ok := presets.Rules("")
	require.True(t, ok)
	assert.Equal(t, t20, def, "empty name resolves the default preset")

	_, ok = presets.Rules("the-hundred")
	assert.False(t, ok)
}

func TestLoadRulePresetsRejectsBadSheet(t *testing.T) {
	path := writePresets(t, `
presets:
  broken:
    overs_per_innings: -3
`)
	_, err := LoadRulePresets(path)
	assert.Error(t, err)
}

func TestLoadRulePresetsRejectsMissingDefault(t *testing.T) {
	path := writePresets(t, `
default: nope
presets:
  t20:
    overs_per_innings: 20
`)
	_, err := LoadRulePresets(path)
	assert.Error(t, err)
}

func TestRulesWithoutFileDefault(t *testing.T) {
	presets := RulePresets{}
	rules, ok := presets.Rules("")
	require.True(t, ok)
	assert.Equal(t, 20, rules.OversPerInnings, "built-in Twenty20 sheet")
}
