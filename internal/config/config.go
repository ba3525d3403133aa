// Package config holds the versioned rule set for the roster economy.
//
// Every tunable constant of the game lives here; the engines take a RuleSet
// by injection and never branch on season versions. A malformed rule set is
// a programmer/operator error and is rejected loudly at startup, unlike
// business rejections which are ordinary return values.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RuleSet is the complete configuration surface of the economy engine.
type RuleSet struct {
	Version int

	// Pricing model.
	WindowSize       int             // rolling form window length
	SprintWeight     decimal.Decimal // weight of sprint races in the rolling average
	DollarsPerPoint  decimal.Decimal // target price per rolling-average point
	MinPrice         decimal.Decimal
	MaxPrice         decimal.Decimal
	MaxChangePerRace decimal.Decimal // price rate limit

	// Roster shape and budget.
	StartingBudget decimal.Decimal
	DriverSlots    int

	// Ace (captain) multiplier.
	AceMultiplier   decimal.Decimal
	AcePriceCeiling decimal.Decimal

	// Stale-roster penalty.
	StaleThreshold int             // races without a transfer before penalties start
	StalePenalty   decimal.Decimal // flat deduction per race beyond the threshold

	// Hot-hand bonus for a contract's first scored race.
	HotHandPodiumBonus     decimal.Decimal
	HotHandPointsThreshold decimal.Decimal
	HotHandPointsBonus     decimal.Decimal

	// Transfer economics.
	ValueCaptureRate     decimal.Decimal // points per 10 units of sale profit
	ContractLength       int             // races until forced expiry
	LockoutRaces         int             // cooldown after expiry
	EarlyTerminationRate decimal.Decimal // per race remaining
	SaleCommissionRate   decimal.Decimal

	// Late-joiner catch-up.
	CatchUpPointsPerRace decimal.Decimal
}

// Default returns the canonical rule set.
func Default() *RuleSet {
	return &RuleSet{
		Version:                1,
		WindowSize:             5,
		SprintWeight:           decimal.NewFromFloat(0.75),
		DollarsPerPoint:        decimal.NewFromInt(10),
		MinPrice:               decimal.NewFromInt(10),
		MaxPrice:               decimal.NewFromInt(1000),
		MaxChangePerRace:       decimal.NewFromInt(30),
		StartingBudget:         decimal.NewFromInt(1000),
		DriverSlots:            5,
		AceMultiplier:          decimal.NewFromInt(2),
		AcePriceCeiling:        decimal.NewFromInt(300),
		StaleThreshold:         5,
		StalePenalty:           decimal.NewFromInt(5),
		HotHandPodiumBonus:     decimal.NewFromInt(10),
		HotHandPointsThreshold: decimal.NewFromInt(10),
		HotHandPointsBonus:     decimal.NewFromInt(5),
		ValueCaptureRate:       decimal.NewFromInt(2),
		ContractLength:         5,
		LockoutRaces:           1,
		EarlyTerminationRate:   decimal.NewFromFloat(0.05),
		SaleCommissionRate:     decimal.NewFromFloat(0.10),
		CatchUpPointsPerRace:   decimal.NewFromInt(5),
	}
}

// Validate checks structural sanity. The zero-to-one bounds on the rate
// fields keep fee math from ever producing negative proceeds.
func (r *RuleSet) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case r.WindowSize < 1:
		return fmt.Errorf("config: window_size must be >= 1, got %d", r.WindowSize)
	case r.SprintWeight.LessThanOrEqual(decimal.Zero) || r.SprintWeight.GreaterThan(one):
		return fmt.Errorf("config: sprint_weight must be in (0, 1], got %s", r.SprintWeight)
	case r.DollarsPerPoint.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("config: dollars_per_point must be positive, got %s", r.DollarsPerPoint)
	case r.MinPrice.LessThan(decimal.Zero) || r.MaxPrice.LessThanOrEqual(r.MinPrice):
		return fmt.Errorf("config: price bounds invalid: min=%s max=%s", r.MinPrice, r.MaxPrice)
	case r.MaxChangePerRace.LessThanOrEqual(decimal.Zero):
		return fmt.Errorf("config: max_change_per_race must be positive, got %s", r.MaxChangePerRace)
	case r.StartingBudget.LessThan(decimal.Zero):
		return fmt.Errorf("config: starting_budget must be non-negative, got %s", r.StartingBudget)
	case r.DriverSlots < 1:
		return fmt.Errorf("config: driver_slots must be >= 1, got %d", r.DriverSlots)
	case r.AceMultiplier.LessThan(one):
		return fmt.Errorf("config: ace_multiplier must be >= 1, got %s", r.AceMultiplier)
	case r.StaleThreshold < 1:
		return fmt.Errorf("config: stale_threshold must be >= 1, got %d", r.StaleThreshold)
	case r.ContractLength < 1:
		return fmt.Errorf("config: contract_length must be >= 1, got %d", r.ContractLength)
	case r.LockoutRaces < 0:
		return fmt.Errorf("config: lockout_races must be >= 0, got %d", r.LockoutRaces)
	case r.EarlyTerminationRate.LessThan(decimal.Zero) || r.EarlyTerminationRate.GreaterThan(one):
		return fmt.Errorf("config: early_termination_rate must be in [0, 1], got %s", r.EarlyTerminationRate)
	case r.SaleCommissionRate.LessThan(decimal.Zero) || r.SaleCommissionRate.GreaterThan(one):
		return fmt.Errorf("config: sale_commission_rate must be in [0, 1], got %s", r.SaleCommissionRate)
	}
	return nil
}

// fileRules is the yaml representation. Numeric overrides are pointers so
// absent keys fall back to Default(); decimal fields travel as strings to
// keep exact values out of float64.
type fileRules struct {
	Version                *int    `yaml:"version"`
	WindowSize             *int    `yaml:"window_size"`
	SprintWeight           *string `yaml:"sprint_weight"`
	DollarsPerPoint        *string `yaml:"dollars_per_point"`
	MinPrice               *string `yaml:"min_price"`
	MaxPrice               *string `yaml:"max_price"`
	MaxChangePerRace       *string `yaml:"max_change_per_race"`
	StartingBudget         *string `yaml:"starting_budget"`
	DriverSlots            *int    `yaml:"driver_slots"`
	AceMultiplier          *string `yaml:"ace_multiplier"`
	AcePriceCeiling        *string `yaml:"ace_price_ceiling"`
	StaleThreshold         *int    `yaml:"stale_threshold"`
	StalePenalty           *string `yaml:"stale_penalty"`
	HotHandPodiumBonus     *string `yaml:"hot_hand_podium_bonus"`
	HotHandPointsThreshold *string `yaml:"hot_hand_points_threshold"`
	HotHandPointsBonus     *string `yaml:"hot_hand_points_bonus"`
	ValueCaptureRate       *string `yaml:"value_capture_rate"`
	ContractLength         *int    `yaml:"contract_length"`
	LockoutRaces           *int    `yaml:"lockout_races"`
	EarlyTerminationRate   *string `yaml:"early_termination_rate"`
	SaleCommissionRate     *string `yaml:"sale_commission_rate"`
	CatchUpPointsPerRace   *string `yaml:"catch_up_points_per_race"`
}

// LoadFile reads a yaml rule set, filling unset fields from Default().
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var file fileRules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	rules := Default()
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&rules.Version, file.Version)
	setInt(&rules.WindowSize, file.WindowSize)
	setInt(&rules.DriverSlots, file.DriverSlots)
	setInt(&rules.StaleThreshold, file.StaleThreshold)
	setInt(&rules.ContractLength, file.ContractLength)
	setInt(&rules.LockoutRaces, file.LockoutRaces)

	for _, f := range []struct {
		dst  *decimal.Decimal
		src  *string
		name string
	}{
		{&rules.SprintWeight, file.SprintWeight, "sprint_weight"},
		{&rules.DollarsPerPoint, file.DollarsPerPoint, "dollars_per_point"},
		{&rules.MinPrice, file.MinPrice, "min_price"},
		{&rules.MaxPrice, file.MaxPrice, "max_price"},
		{&rules.MaxChangePerRace, file.MaxChangePerRace, "max_change_per_race"},
		{&rules.StartingBudget, file.StartingBudget, "starting_budget"},
		{&rules.AceMultiplier, file.AceMultiplier, "ace_multiplier"},
		{&rules.AcePriceCeiling, file.AcePriceCeiling, "ace_price_ceiling"},
		{&rules.StalePenalty, file.StalePenalty, "stale_penalty"},
		{&rules.HotHandPodiumBonus, file.HotHandPodiumBonus, "hot_hand_podium_bonus"},
		{&rules.HotHandPointsThreshold, file.HotHandPointsThreshold, "hot_hand_points_threshold"},
		{&rules.HotHandPointsBonus, file.HotHandPointsBonus, "hot_hand_points_bonus"},
		{&rules.ValueCaptureRate, file.ValueCaptureRate, "value_capture_rate"},
		{&rules.EarlyTerminationRate, file.EarlyTerminationRate, "early_termination_rate"},
		{&rules.SaleCommissionRate, file.SaleCommissionRate, "sale_commission_rate"},
		{&rules.CatchUpPointsPerRace, file.CatchUpPointsPerRace, "catch_up_points_per_race"},
	} {
		if f.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", f.name, err)
		}
		*f.dst = d
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
