package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// RunConfig holds the configuration of an inference or caching run.
type RunConfig struct {
	Version     string
	WidthScale  float64
	NumClasses  int
	BatchSize   int
	TopK        int
	LatentLayer int
	ReplaySize  int
	Encrypt     bool
}

// ParseWidthScale parses a width multiplier, accepting either a float
// ("0.75") or a ratio ("3/4").
func ParseWidthScale(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("width scale ratio has zero denominator")
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ValidateRunConfig validates a run configuration.
func ValidateRunConfig(config *RunConfig) error {
	if config.Version != "orig" && config.Version != "fd" {
		return fmt.Errorf("version must be 'orig' or 'fd'")
	}

	if config.WidthScale <= 0 || config.WidthScale > 1 {
		return fmt.Errorf("width scale must be in (0, 1]")
	}

	if config.NumClasses <= 0 {
		return fmt.Errorf("number of classes must be positive")
	}

	if config.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if config.TopK <= 0 || config.TopK > config.NumClasses {
		return fmt.Errorf("top-k must be in [1, classes]")
	}

	if config.LatentLayer < 0 {
		return fmt.Errorf("latent layer index must not be negative")
	}

	if config.ReplaySize < 0 {
		return fmt.Errorf("replay size must not be negative")
	}

	return nil
}
