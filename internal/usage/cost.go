// Package usage turns token accounting into cost telemetry. Estimates are
// informational only; nothing gates on them.
package usage

import (
	"strings"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/pkg/models"
)

// Estimator prices token usage per provider.
type Estimator struct {
	rates map[string]config.CostRate
}

// NewEstimator builds an estimator over the configured per-provider rates
// (keys are upper-case provider names).
func NewEstimator(rates map[string]config.CostRate) *Estimator {
	if rates == nil {
		rates = map[string]config.CostRate{}
	}
	return &Estimator{rates: rates}
}

// EstimateUSD prices the usage for the given provider. The second return is
// false when no rate is configured.
func (e *Estimator) EstimateUSD(provider string, u models.Usage) (float64, bool) {
	rate, ok := e.rates[strings.ToUpper(provider)]
	if !ok {
		return 0, false
	}
	cost := float64(u.InputTokens)/1e6*rate.InPer1M + float64(u.OutputTokens)/1e6*rate.OutPer1M
	return cost, true
}
