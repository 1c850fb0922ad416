package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var paramValidate = validator.New()

// ParameterSet identifies one classifier configuration. It is immutable
// once validated and its Key is the optimizer's dedup/cache identity.
type ParameterSet struct {
	NeighborsCount      int     `json:"neighbors_count"       validate:"min=1,max=100"`
	FeatureCount        int     `json:"feature_count"         validate:"min=2,max=5"`
	VolatilityLookback  int     `json:"volatility_lookback"   validate:"min=5,max=50"`
	TrendStrengthWeight float64 `json:"trend_strength_weight" validate:"min=0,max=1"`
	MaxCorrelation      float64 `json:"max_correlation"       validate:"min=0,max=1"`
}

// Validate checks every field against its closed range. It touches no
// market data; construction of any component over an invalid set must
// fail before data is read.
func (p ParameterSet) Validate() error {
	if err := paramValidate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

// Key returns the canonical serialization used to mark a combination as
// evaluated across restarts. Field order is fixed; float fields use a
// stable short form.
func (p ParameterSet) Key() string {
	return fmt.Sprintf("k=%d,f=%d,vl=%d,tw=%.4f,mc=%.4f",
		p.NeighborsCount, p.FeatureCount, p.VolatilityLookback,
		p.TrendStrengthWeight, p.MaxCorrelation)
}
