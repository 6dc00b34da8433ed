package anthropic

import "go.uber.org/zap"

// TokenUsage is the token accounting of one response.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

// Cache writes and reads are billed as multiples of the input price.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.1
)

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-6":            {input: 15.00, output: 75.00},
}

// EstimateCost prices u for model in USD. Unknown models cost 0.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	input := float64(u.InputTokens) +
		float64(u.CacheCreationInputTokens)*cacheWriteMultiplier +
		float64(u.CacheReadInputTokens)*cacheReadMultiplier
	return (input*p.input + float64(u.OutputTokens)*p.output) / 1e6
}

// LogCost writes u and its estimated cost at debug level.
func (u TokenUsage) LogCost(model, op string) {
	zap.L().Debug("anthropic: usage",
		zap.String("model", model),
		zap.String("op", op),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("cost_usd", u.EstimateCost(model)),
	)
}
