package backend

import "strings"

// ModelAdaptive picks a model per call site instead of using one for all calls.
const ModelAdaptive = "adaptive"

// CallSite identifies why the agent is being invoked.
type CallSite int

const (
	CallSiteTask    CallSite = iota // Executing a task in a worktree
	CallSiteResolve                 // Resolving a merge conflict
)

const (
	ModelSonnet = "claude-sonnet-4-5"
	ModelOpus   = "claude-opus-4-5"
	ModelHaiku  = "claude-haiku-4-5"
)

// ResolveModel returns the concrete model for a call site. Concrete model
// names pass through unchanged; "adaptive" uses the faster model for task
// execution and the stronger one for conflict resolution.
func ResolveModel(model string, site CallSite) string {
	if model != ModelAdaptive && model != "" {
		return model
	}
	if site == CallSiteResolve {
		return ModelOpus
	}
	return ModelSonnet
}

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// DefaultModelPricing contains pricing for known Claude models, keyed by
// model id prefix.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5":   {InputPerMillion: 5.00, OutputPerMillion: 25.00},
	"claude-opus-4":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// fallbackPricing is used for unknown models.
var fallbackPricing = ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// PricingFor returns the pricing entry with the longest prefix matching
// model, or the fallback. Short aliases ("sonnet", "opus", "haiku") are
// mapped to the current generation.
func PricingFor(model string) ModelPricing {
	switch model {
	case "opus":
		model = ModelOpus
	case "sonnet":
		model = ModelSonnet
	case "haiku":
		model = ModelHaiku
	}

	best := ""
	for prefix := range DefaultModelPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return fallbackPricing
	}
	return DefaultModelPricing[best]
}

// EstimateCost returns the USD cost of the given token counts.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p := PricingFor(model)
	return float64(inputTokens)/1_000_000*p.InputPerMillion +
		float64(outputTokens)/1_000_000*p.OutputPerMillion
}
