package internal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StrategyConfigSource resolves the merged LLM strategy block for a category
type StrategyConfigSource interface {
	StrategyConfig(category string) (StrategyConfig, error)
}

// StrategyFactory builds a strategy for a provider with per-model overrides
type StrategyFactory func(p Provider, settings ModelSettings) (Strategy, error)

// NewStrategyFactory returns a factory that overlays model settings on the
// provider defaults before calling NewStrategy
func NewStrategyFactory(base ProviderSettings, opts ...StrategyOption) StrategyFactory {
	return func(p Provider, ms ModelSettings) (Strategy, error) {
		settings := base
		switch p {
		case ProviderGemini:
			g := &settings.Gemini
			g.Model = firstNonEmpty(ms.Model, g.Model)
			g.ChunkSize = firstPositive(ms.ChunkSize, g.ChunkSize)
			g.ChunkingStrategy = firstNonEmpty(ms.ChunkingStrategy, g.ChunkingStrategy)
			g.Temperature = firstPositiveFloat(ms.Temperature, g.Temperature)
			g.MaxOutputTokens = firstPositive(ms.MaxTokens, g.MaxOutputTokens)
		case ProviderPerplexity:
			pc := &settings.Perplexity
			pc.Model = firstNonEmpty(ms.Model, pc.Model)
			pc.ChunkSize = firstPositive(ms.ChunkSize, pc.ChunkSize)
			pc.ChunkingStrategy = firstNonEmpty(ms.ChunkingStrategy, pc.ChunkingStrategy)
			pc.Temperature = firstPositiveFloat(ms.Temperature, pc.Temperature)
			pc.MaxTokens = firstPositive(ms.MaxTokens, pc.MaxTokens)
		case ProviderOllama:
			oc := &settings.Ollama
			oc.Model = firstNonEmpty(ms.Model, oc.Model)
			oc.ChunkSize = firstPositive(ms.ChunkSize, oc.ChunkSize)
			oc.ChunkingStrategy = firstNonEmpty(ms.ChunkingStrategy, oc.ChunkingStrategy)
			oc.Temperature = firstPositiveFloat(ms.Temperature, oc.Temperature)
			oc.MaxTokens = firstPositive(ms.MaxTokens, oc.MaxTokens)
		}
		return NewStrategy(p, settings, opts...)
	}
}

// Router picks a primary and fallback strategy by transcript length and
// category and runs them in order
type Router struct {
	configs StrategyConfigSource
	factory StrategyFactory
	ui      UIManager
}

// NewRouter creates a router
func NewRouter(configs StrategyConfigSource, factory StrategyFactory, ui UIManager) *Router {
	return &Router{configs: configs, factory: factory, ui: ui}
}

// Plan returns the length bucket and the ordered provider attempts for a
// transcript. Force flags restrict the provider family; cloud-only wins when
// both are set.
func (r *Router) Plan(transcript, category string, force ForceFlags) (LengthCategory, []ModelRef, StrategyConfig) {
	cfg, err := r.configs.StrategyConfig(category)
	if err != nil {
		r.ui.Warnf("Could not load LLM strategy config for %q, using defaults: %v", category, err)
		cfg = StrategyConfig{}
	}

	length := cfg.Thresholds().Categorize(cfg.MeasureLength(transcript))

	pair, ok := cfg.StrategyByLength[length]
	if !ok || pair.Primary.Provider == "" {
		r.ui.Warnf("No LLM strategy found for %s transcripts in category %q, using %s with %s fallback",
			length, category, DefaultPlan.Primary, DefaultPlan.Fallback)
		pair = DefaultPlan
	}

	return length, r.candidates(pair, force), cfg
}

func (r *Router) candidates(pair StrategyPair, force ForceFlags) []ModelRef {
	var refs []ModelRef
	for _, ref := range []ModelRef{pair.Primary, pair.Fallback} {
		if ref.Provider == "" {
			continue
		}
		p, err := ParseProvider(ref.Provider)
		if err != nil {
			r.ui.Warnf("Skipping configured strategy: %v", err)
			continue
		}
		ref.Provider = p.String()
		refs = append(refs, ref)
	}

	var family func(Provider) bool
	var defaults []ModelRef
	switch {
	case force.CloudOnly:
		family = func(p Provider) bool { return !p.IsLocal() }
		defaults = []ModelRef{DefaultPlan.Primary, DefaultPlan.Fallback}
	case force.LocalOnly:
		family = Provider.IsLocal
		defaults = []ModelRef{{Provider: ProviderOllama.String()}}
	}

	if family != nil {
		var kept []ModelRef
		for _, ref := range refs {
			p, _ := ParseProvider(ref.Provider)
			if family(p) {
				kept = append(kept, ref)
			}
		}
		refs = kept
		if len(refs) == 0 {
			refs = defaults
		}
	}

	// Drop a fallback identical to the primary
	if len(refs) == 2 && refs[0] == refs[1] {
		refs = refs[:1]
	}
	return refs
}

// AnalyzeByLength runs the primary strategy and, if it fails, the fallback.
// It never returns an error: an empty result means nothing was produced.
func (r *Router) AnalyzeByLength(ctx context.Context, transcript, category, outputLanguage string, force ForceFlags) AnalysisResults {
	results := AnalysisResults{}
	length, refs, cfg := r.Plan(transcript, category, force)

	r.ui.Debugf("Transcript is %s (%d %s); plan: %s", length, cfg.MeasureLength(transcript),
		lengthUnitName(cfg.LengthUnit), joinRefs(refs))

	req := AnalyzeRequest{Category: category, OutputLanguage: outputLanguage}
	for i, ref := range refs {
		role := "primary"
		if i > 0 {
			role = "fallback"
		}

		out, err := r.attempt(ctx, ref, cfg, transcript, req)
		if err == nil {
			results[out.Provider.ResultKey()] = out
			return results
		}

		if IsRateLimited(err) {
			r.ui.Warnf("%s strategy %s was rate limited: %v", role, ref, err)
		} else {
			r.ui.Warnf("%s strategy %s failed: %v", role, ref, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.ui.Errorf("All LLM strategies failed for this transcript (%s)", joinRefs(refs))
	return results
}

func (r *Router) attempt(ctx context.Context, ref ModelRef, cfg StrategyConfig, transcript string, req AnalyzeRequest) (AnalysisOutput, error) {
	p, err := ParseProvider(ref.Provider)
	if err != nil {
		return AnalysisOutput{}, err
	}

	settings := cfg.ModelSettingsFor(p)
	if ref.Model != "" {
		settings.Model = ref.Model
	}

	strategy, err := r.factory(p, settings)
	if err != nil {
		return AnalysisOutput{}, fmt.Errorf("creating %s strategy: %w", p, err)
	}

	r.ui.Infof("Analyzing transcript with %s (%s)", p, strategy.Model())
	start := time.Now()
	res, err := strategy.Analyze(ctx, transcript, req)
	if err != nil {
		return AnalysisOutput{}, err
	}
	r.ui.Debugf("%s finished in %s", p, time.Since(start).Round(time.Second))

	return AnalysisOutput{
		Text:        res.Text,
		Description: res.Description,
		ModelName:   strategy.Model(),
		Provider:    p,
	}, nil
}

func lengthUnitName(unit string) string {
	if strings.EqualFold(unit, LengthUnitCharacters) {
		return LengthUnitCharacters
	}
	return LengthUnitWords
}

func joinRefs(refs []ModelRef) string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.String()
	}
	return strings.Join(names, " -> ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
