package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thirdumpire/crease/internal/domain"
)

// RulePreset is one named rule sheet in the presets file. Zero fields
// fall back to the Twenty20 defaults so presets only spell out what
// they change.
type RulePreset struct {
	OversPerInnings   int    `yaml:"overs_per_innings"`
	BallsPerOver      int    `yaml:"balls_per_over"`
	PlayersPerSide    int    `yaml:"players_per_side"`
	InningsPerSide    int    `yaml:"innings_per_side"`
	MaxOversPerBowler int    `yaml:"max_overs_per_bowler"`
	PowerplayOvers    int    `yaml:"powerplay_overs"`
	NoBallRuns        int    `yaml:"no_ball_runs"`
	WideRuns          int    `yaml:"wide_runs"`
	RequireKeeper     *bool  `yaml:"require_keeper"`
	TieBreak          string `yaml:"tie_break"`
}

type RulePresets struct {
	Default string                `yaml:"default"`
	Presets map[string]RulePreset `yaml:"presets"`
}

func LoadRulePresets(path string) (RulePresets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulePresets{}, fmt.Errorf("read rule presets: %w", err)
	}

	var presets RulePresets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return RulePresets{}, fmt.Errorf("parse rule presets: %w", err)
	}

	for name, p := range presets.Presets {
		if _, err := presets.toRules(p); err != nil {
			return RulePresets{}, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	if presets.Default != "" {
		if _, ok := presets.Presets[presets.Default]; !ok {
			return RulePresets{}, fmt.Errorf("default preset %q not defined", presets.Default)
		}
	}
	return presets, nil
}

// Rules resolves a preset name to a validated rule sheet. An empty name
// resolves to the file's default preset, and a missing file default
// resolves to the built-in Twenty20 sheet.
func (rp RulePresets) Rules(name string) (domain.Rules, bool) {
	if name == "" {
		name = rp.Default
	}
	if name == "" {
		return domain.DefaultRules(), true
	}
	p, ok := rp.Presets[name]
	if !ok {
		return domain.Rules{}, false
	}
	rules, err := rp.toRules(p)
	if err != nil {
		return domain.Rules{}, false
	}
	return rules, true
}

// Names lists the available preset names.
func (rp RulePresets) Names() []string {
	names := make([]string, 0, len(rp.Presets))
	for name := range rp.Presets {
		names = append(names, name)
	}
	return names
}

func (rp RulePresets) toRules(p RulePreset) (domain.Rules, error) {
	rules := domain.DefaultRules()
	if p.OversPerInnings != 0 {
		rules.OversPerInnings = p.OversPerInnings
	}
	if p.BallsPerOver != 0 {
		rules.BallsPerOver = p.BallsPerOver
	}
	if p.PlayersPerSide != 0 {
		rules.PlayersPerSide = p.PlayersPerSide
	}
	if p.InningsPerSide != 0 {
		rules.InningsPerSide = p.InningsPerSide
	}
	if p.MaxOversPerBowler != 0 {
		rules.MaxOversPerBowler = p.MaxOversPerBowler
	}
	if p.PowerplayOvers != 0 {
		rules.PowerplayOvers = p.PowerplayOvers
	}
	if p.NoBallRuns != 0 {
		rules.NoBallRuns = p.NoBallRuns
	}
	if p.WideRuns != 0 {
		rules.WideRuns = p.WideRuns
	}
	if p.RequireKeeper != nil {
		rules.RequireKeeper = *p.RequireKeeper
	}
	if p.TieBreak != "" {
		rules.TieBreak = domain.TieBreak(p.TieBreak)
	}
	if err := rules.Validate(); err != nil {
		return domain.Rules{}, err
	}
	return rules, nil
}
