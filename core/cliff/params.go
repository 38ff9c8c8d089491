package cliff

import (
	"time"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
)

// Params tunes the detector. The defaults are a starting point and have not yet been
// calibrated against real session data.
type Params struct {
	// BucketWidth is the resolution of the survivorship curve.
	BucketWidth time.Duration `json:"bucket_width" validate:"gt=0"`
	// WindowBuckets is the number of buckets a departure must fit in to count as one drop.
	WindowBuckets int `json:"window_buckets" validate:"gte=1"`
	// DropThreshold must be exceeded by the fraction of present participants leaving in the window.
	DropThreshold float64 `json:"drop_threshold" validate:"gt=0,lt=1"`
	// MinTailFraction is the share of the meeting that must remain after the cliff.
	MinTailFraction float64 `json:"min_tail_fraction" validate:"gte=0,lt=1"`
	MinParticipants int     `json:"min_participants" validate:"gte=1"`

	// confidence scoring
	DropWeight     float64 `json:"drop_weight" validate:"gte=0,lte=1"`
	TailSaturation float64 `json:"tail_saturation" validate:"gt=0,lte=1"`
	HighCutoff     float64 `json:"high_cutoff" validate:"gtfield=MediumCutoff,lte=1"`
	MediumCutoff   float64 `json:"medium_cutoff" validate:"gt=0"`

	// ImpactEpsilon is the percentage delta below which a student is not considered impacted.
	ImpactEpsilon float64 `json:"impact_epsilon" validate:"gte=0"`
}

func DefaultParams() Params {
	return Params{
		BucketWidth:     time.Minute,
		WindowBuckets:   5,
		DropThreshold:   0.5,
		MinTailFraction: 0.1,
		MinParticipants: 3,
		DropWeight:      0.6,
		TailSaturation:  0.25,
		HighCutoff:      0.8,
		MediumCutoff:    0.65,
		ImpactEpsilon:   0.01,
	}
}

// ParamsFromConfig maps the configured tunables. Unset tunables, and zero values of the
// ones that must be positive, fall back to the defaults.
func ParamsFromConfig(conf core.CliffConfig) Params {
	p := DefaultParams()
	if conf.BucketWidth > 0 {
		p.BucketWidth = conf.BucketWidth
	}
	if conf.WindowBuckets > 0 {
		p.WindowBuckets = conf.WindowBuckets
	}
	if conf.DropThreshold > 0 {
		p.DropThreshold = conf.DropThreshold
	}
	if conf.MinTailFraction != nil {
		p.MinTailFraction = *conf.MinTailFraction
	}
	if conf.MinParticipants > 0 {
		p.MinParticipants = conf.MinParticipants
	}
	if conf.DropWeight != nil {
		p.DropWeight = *conf.DropWeight
	}
	if conf.TailSaturation > 0 {
		p.TailSaturation = conf.TailSaturation
	}
	if conf.HighCutoff > 0 {
		p.HighCutoff = conf.HighCutoff
	}
	if conf.MediumCutoff > 0 {
		p.MediumCutoff = conf.MediumCutoff
	}
	if conf.ImpactEpsilon != nil {
		p.ImpactEpsilon = *conf.ImpactEpsilon
	}
	return p
}

func (p Params) Validate() error { return core.ValidateStruct(p) }
