package uenv

import (
	"os"

	"sigs.k8s.io/yaml"
)

// LoadLimits reads a YAML-encoded Limits document from path, applying
// DefaultLimits for any field left zero. A missing file is not an
// error: DefaultLimits() is returned as-is.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return limits, nil
	}
	if err != nil {
		return limits, err
	}
	var overrides Limits
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return limits, err
	}
	if overrides.MaxScopeDepth != 0 {
		limits.MaxScopeDepth = overrides.MaxScopeDepth
	}
	if overrides.MaxHashtreeDepth != 0 {
		limits.MaxHashtreeDepth = overrides.MaxHashtreeDepth
	}
	if overrides.MaxSymbolNameBytes != 0 {
		limits.MaxSymbolNameBytes = overrides.MaxSymbolNameBytes
	}
	if overrides.MaxBigintLimbs != 0 {
		limits.MaxBigintLimbs = overrides.MaxBigintLimbs
	}
	return limits, nil
}
