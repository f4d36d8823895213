package internal

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	DefaultShortMax  = 1000
	DefaultMediumMax = 3000

	LengthUnitWords      = "words"
	LengthUnitCharacters = "characters"
)

// DefaultPlan is used when no plan is configured for a length bucket
var DefaultPlan = StrategyPair{
	Primary:  ModelRef{Provider: ProviderGemini.String()},
	Fallback: ModelRef{Provider: ProviderPerplexity.String()},
}

// ModelRef selects a provider and optionally a model. In YAML it is either a
// provider name or a {provider, model} mapping.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model,omitempty"`
}

func (r *ModelRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Provider = value.Value
		r.Model = ""
		return nil
	}
	type plain ModelRef
	return value.Decode((*plain)(r))
}

func (r ModelRef) String() string {
	if r.Model == "" {
		return r.Provider
	}
	return r.Provider + "/" + r.Model
}

// StrategyPair is the primary/fallback plan for one length bucket
type StrategyPair struct {
	Primary  ModelRef `yaml:"primary"`
	Fallback ModelRef `yaml:"fallback"`
}

// LengthThresholds are inclusive upper bounds of the short and medium buckets
type LengthThresholds struct {
	ShortMax  int `yaml:"short_max,omitempty"`
	MediumMax int `yaml:"medium_max,omitempty"`
}

// ModelSettings overrides a provider's defaults
type ModelSettings struct {
	Model            string  `yaml:"model,omitempty"`
	ChunkSize        int     `yaml:"chunk_size,omitempty"`
	ChunkingStrategy string  `yaml:"chunking_strategy,omitempty"`
	Temperature      float64 `yaml:"temperature,omitempty"`
	MaxTokens        int     `yaml:"max_tokens,omitempty"`
}

// merge overlays the non-zero fields of o
func (s ModelSettings) merge(o ModelSettings) ModelSettings {
	if o.Model != "" {
		s.Model = o.Model
	}
	if o.ChunkSize != 0 {
		s.ChunkSize = o.ChunkSize
	}
	if o.ChunkingStrategy != "" {
		s.ChunkingStrategy = o.ChunkingStrategy
	}
	if o.Temperature != 0 {
		s.Temperature = o.Temperature
	}
	if o.MaxTokens != 0 {
		s.MaxTokens = o.MaxTokens
	}
	return s
}

// StrategyConfig is one llm_strategies block
type StrategyConfig struct {
	LengthUnit       string                          `yaml:"length_unit,omitempty"`
	LengthThresholds LengthThresholds                `yaml:"length_thresholds"`
	StrategyByLength map[LengthCategory]StrategyPair `yaml:"strategy_by_length"`
	ModelConfigs     map[string]ModelSettings        `yaml:"model_configs"`
}

// Merge returns c with a category block applied on top. Each sub-key is
// merged separately: thresholds per field, plans per length bucket, and
// model settings per provider and field.
func (c StrategyConfig) Merge(override StrategyConfig) StrategyConfig {
	merged := StrategyConfig{
		LengthUnit:       c.LengthUnit,
		LengthThresholds: c.LengthThresholds,
		StrategyByLength: maps.Clone(c.StrategyByLength),
		ModelConfigs:     maps.Clone(c.ModelConfigs),
	}
	if merged.StrategyByLength == nil {
		merged.StrategyByLength = map[LengthCategory]StrategyPair{}
	}
	if merged.ModelConfigs == nil {
		merged.ModelConfigs = map[string]ModelSettings{}
	}

	if override.LengthUnit != "" {
		merged.LengthUnit = override.LengthUnit
	}
	if override.LengthThresholds.ShortMax != 0 {
		merged.LengthThresholds.ShortMax = override.LengthThresholds.ShortMax
	}
	if override.LengthThresholds.MediumMax != 0 {
		merged.LengthThresholds.MediumMax = override.LengthThresholds.MediumMax
	}
	for length, pair := range override.StrategyByLength {
		merged.StrategyByLength[length] = pair
	}
	for provider, settings := range override.ModelConfigs {
		key := strings.ToLower(provider)
		merged.ModelConfigs[key] = merged.ModelConfigs[key].merge(settings)
	}
	return merged
}

// Thresholds returns the configured thresholds with defaults filled in
func (c StrategyConfig) Thresholds() LengthThresholds {
	t := c.LengthThresholds
	if t.ShortMax <= 0 {
		t.ShortMax = DefaultShortMax
	}
	if t.MediumMax <= 0 {
		t.MediumMax = DefaultMediumMax
	}
	return t
}

// MeasureLength counts transcript length in the configured unit
func (c StrategyConfig) MeasureLength(transcript string) int {
	if strings.EqualFold(c.LengthUnit, LengthUnitCharacters) {
		return utf8.RuneCountInString(transcript)
	}
	return len(strings.Fields(transcript))
}

// Categorize buckets a length. Each bound is inclusive.
func (t LengthThresholds) Categorize(length int) LengthCategory {
	switch {
	case length <= t.ShortMax:
		return LengthShort
	case length <= t.MediumMax:
		return LengthMedium
	default:
		return LengthLong
	}
}

// ModelSettingsFor returns the model settings configured for a provider
func (c StrategyConfig) ModelSettingsFor(p Provider) ModelSettings {
	return c.ModelConfigs[p.String()]
}

// Validate checks that every configured plan names a known provider
func (c StrategyConfig) Validate() error {
	for length, pair := range c.StrategyByLength {
		for _, ref := range []ModelRef{pair.Primary, pair.Fallback} {
			if ref.Provider == "" {
				continue
			}
			if _, err := ParseProvider(ref.Provider); err != nil {
				return fmt.Errorf("strategy_by_length.%s: %w", length, err)
			}
		}
	}
	for name := range c.ModelConfigs {
		if _, err := ParseProvider(name); err != nil {
			return fmt.Errorf("model_configs: %w", err)
		}
	}
	return nil
}
