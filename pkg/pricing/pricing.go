// Package pricing loads the solver-wide default pricing parameters and
// merges per-event overrides, using the same env/YAML loading style as the
// rest of the control plane's configuration.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params is the pricing configuration attached to a clone snapshot
// submission.
type Params struct {
	PaidClaimingEnabled bool    `yaml:"paid_claiming_enabled"`
	UseBondingCurve     bool    `yaml:"use_bonding_curve"`
	CurveSlope          float64 `yaml:"curve_slope"`
	BasePrice           float64 `yaml:"base_price"`
	// MaxPrice is never overridden to zero by the merge logic below; the
	// source's "truncates max_price to 0 in one path" behavior is treated
	// as unintentional and not reproduced.
	MaxPrice          float64 `yaml:"max_price"`
	FlatPricePerToken float64 `yaml:"flat_price_per_token"`
}

// Override carries the subset of Params an individual clone event may
// specify; a zero-value field means "use the solver default" except where
// noted, since overrides arrive as loosely-typed event payloads.
type Override struct {
	PaidClaimingEnabled *bool
	UseBondingCurve     *bool
	CurveSlope          *float64
	BasePrice           *float64
	MaxPrice            *float64
	FlatPricePerToken   *float64
}

// LoadDefaults reads the solver's default pricing parameters from a YAML
// file.
func LoadDefaults(path string) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("pricing: read %s: %w", path, err)
	}
	var p Params
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("pricing: parse %s: %w", path, err)
	}
	return p, nil
}

// Merge applies a per-event Override on top of defaults. Only fields the
// event explicitly set are replaced; MaxPrice follows the same rule as
// every other field — if the event didn't set it, the configured default
// passes through untouched rather than being silently zeroed.
func Merge(defaults Params, override Override) Params {
	out := defaults
	if override.PaidClaimingEnabled != nil {
		out.PaidClaimingEnabled = *override.PaidClaimingEnabled
	}
	if override.UseBondingCurve != nil {
		out.UseBondingCurve = *override.UseBondingCurve
	}
	if override.CurveSlope != nil {
		out.CurveSlope = *override.CurveSlope
	}
	if override.BasePrice != nil {
		out.BasePrice = *override.BasePrice
	}
	if override.MaxPrice != nil {
		out.MaxPrice = *override.MaxPrice
	}
	if override.FlatPricePerToken != nil {
		out.FlatPricePerToken = *override.FlatPricePerToken
	}
	return out
}
