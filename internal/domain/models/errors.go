package models

import "errors"

// Error taxonomy. InsufficientData and arithmetic degeneracy resolve to
// HOLD/skip inside the pipeline and never cross an instrument or
// parameter-set boundary; only InvalidConfiguration and total fetch
// exhaustion may stop a run.
var (
	ErrInsufficientData        = errors.New("insufficient data")
	ErrInvalidConfiguration    = errors.New("invalid configuration")
	ErrExternalUnavailable     = errors.New("external service unavailable")
	ErrDataQualityInsufficient = errors.New("data quality below threshold")
)
