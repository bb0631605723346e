package scoring

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk override format for weights and thresholds.
type fileConfig struct {
	Weights    *Weights    `yaml:"weights"`
	Thresholds *Thresholds `yaml:"thresholds"`
}

// LoadConfig reads a yaml scoring override file. An empty path returns the
// defaults. Weight overrides must sum to 1.0 (within rounding error).
func LoadConfig(path string) (Weights, Thresholds, error) {
	weights := DefaultWeights()
	thresholds := DefaultThresholds()
	if path == "" {
		return weights, thresholds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return weights, thresholds, eris.Wrapf(err, "scoring: read config %s", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return weights, thresholds, eris.Wrapf(err, "scoring: parse config %s", path)
	}

	if fc.Weights != nil {
		if sum := fc.Weights.sum(); math.Abs(sum-1.0) > 0.001 {
			return weights, thresholds, eris.Errorf("scoring: weights sum to %.3f, want 1.0", sum)
		}
		weights = *fc.Weights
	}
	if fc.Thresholds != nil {
		t := *fc.Thresholds
		if t.MinimumScore > t.SimulationScore || t.SimulationScore > t.OutreachScore {
			return weights, thresholds, eris.New("scoring: thresholds must be ordered minimum <= simulation <= outreach")
		}
		thresholds = t
	}
	return weights, thresholds, nil
}
