package classifier

import "fmt"

// ConfidenceStrategy derives a 0-1 confidence score from the best and
// second-best class similarities. Whether confidence should be the raw top
// similarity or margin-adjusted is a configuration choice, so both are
// implemented behind one interface.
type ConfidenceStrategy interface {
	Name() string
	Confidence(best, second float64) float64
}

// RawStrategy reports the top-class similarity unchanged.
type RawStrategy struct{}

func (RawStrategy) Name() string { return "raw" }

func (RawStrategy) Confidence(best, second float64) float64 {
	return clamp01(best)
}

// MarginStrategy reports the gap between the top two classes. A posting that
// matches one class far better than any other scores high; a near-tie scores
// near zero even when the top similarity is large.
type MarginStrategy struct{}

func (MarginStrategy) Name() string { return "margin" }

func (MarginStrategy) Confidence(best, second float64) float64 {
	return clamp01(best - second)
}

// StrategyFromName resolves a configured strategy name.
func StrategyFromName(name string) (ConfidenceStrategy, error) {
	switch name {
	case "raw":
		return RawStrategy{}, nil
	case "margin", "":
		return MarginStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown confidence strategy: %q", name)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
