package llm

// Pricing is a model's per-million-token cost in USD.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// pricing is a small built-in table for the models this pipeline is
// expected to drive; unlisted models cost 0 (surfaced, not estimated).
var pricing = map[string]Pricing{
	"anthropic/claude-3.5-sonnet": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"anthropic/claude-3-haiku":    {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"openai/gpt-4o":               {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"openai/gpt-4o-mini":          {InputPerMillion: 0.15, OutputPerMillion: 0.60},
}

// EstimateCostUSD returns the estimated cost of a call to model given its
// token counts, or 0 if the model has no known pricing.
func EstimateCostUSD(model string, inputTokens, outputTokens int64) float64 {
	p, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*p.InputPerMillion + float64(outputTokens)/1_000_000*p.OutputPerMillion
}
