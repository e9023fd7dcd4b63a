package providers

import "lens_gateway/internal/models"

// Rate is a per-token price in USD.
type Rate struct {
	Input  float64
	Output float64
}

// PriceTable maps model names to rates for one vendor.
type PriceTable struct {
	Rates         map[string]Rate
	FallbackModel string // used when a model is not in Rates
	Flat          Rate   // used when Rates is empty
	Approximate   bool   // true when the vendor has no published per-token price here
}

// Rate returns the rate for model, using the fallback model (or the flat rate)
// when the model is unknown.
func (t PriceTable) Rate(model string) Rate {
	if len(t.Rates) == 0 {
		return t.Flat
	}
	if r, ok := t.Rates[model]; ok {
		return r
	}
	return t.Rates[t.FallbackModel]
}

var openAIPrices = PriceTable{
	Rates: map[string]Rate{
		"gpt-4":         {Input: 0.00003, Output: 0.00006},
		"gpt-4-32k":     {Input: 0.00006, Output: 0.00012},
		"gpt-4-turbo":   {Input: 0.00001, Output: 0.00003},
		"gpt-4o":        {Input: 0.000005, Output: 0.000015},
		"gpt-4o-mini":   {Input: 0.00000015, Output: 0.0000006},
		"gpt-3.5-turbo": {Input: 0.0000005, Output: 0.0000015},
	},
	FallbackModel: "gpt-4",
}

var anthropicPrices = PriceTable{
	Rates: map[string]Rate{
		"claude-3-opus-20240229":     {Input: 0.000015, Output: 0.000075},
		"claude-3-sonnet-20240229":   {Input: 0.000003, Output: 0.000015},
		"claude-3-haiku-20240307":    {Input: 0.00000025, Output: 0.00000125},
		"claude-3-5-sonnet-20241022": {Input: 0.000003, Output: 0.000015},
	},
	FallbackModel: "claude-3-sonnet-20240229",
}

var mistralPrices = PriceTable{
	Rates: map[string]Rate{
		"mistral-large-latest":  {Input: 0.000008, Output: 0.000024},
		"mistral-medium-latest": {Input: 0.0000027, Output: 0.0000081},
		"mistral-small-latest":  {Input: 0.000002, Output: 0.000006},
		"open-mistral-7b":       {Input: 0.00000025, Output: 0.00000025},
		"open-mixtral-8x7b":     {Input: 0.0000007, Output: 0.0000007},
	},
	FallbackModel: "mistral-large-latest",
}

// Google and xAI rates are estimates, not sourced pricing.
var googlePrices = PriceTable{
	Flat:        Rate{Input: 0.0000005, Output: 0.0000015},
	Approximate: true,
}

var xaiPrices = PriceTable{
	Flat:        Rate{Input: 0.000005, Output: 0.000015},
	Approximate: true,
}

var priceTables = map[models.ProviderType]PriceTable{
	models.ProviderTypeOpenAI:      openAIPrices,
	models.ProviderTypeAzureOpenAI: openAIPrices,
	models.ProviderTypeAnthropic:   anthropicPrices,
	models.ProviderTypeGoogle:      googlePrices,
	models.ProviderTypeXAI:         xaiPrices,
	models.ProviderTypeMistral:     mistralPrices,
}

// Prices returns the price table for a provider type.
func Prices(t models.ProviderType) (PriceTable, bool) {
	table, ok := priceTables[t]
	return table, ok
}

// EstimateCost computes input*inRate + output*outRate. Unknown provider types
// cost zero. The result is not rounded.
func EstimateCost(t models.ProviderType, model string, tokens Tokens) float64 {
	table, ok := priceTables[t]
	if !ok {
		return 0
	}
	rate := table.Rate(model)
	return float64(tokens.Input)*rate.Input + float64(tokens.Output)*rate.Output
}
