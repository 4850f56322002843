package usage

import (
	"math"
	"testing"

	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/pkg/models"
)

func TestEstimateUSD(t *testing.T) {
	e := NewEstimator(map[string]config.CostRate{
		"GROK": {InPer1M: 2, OutPer1M: 10},
	})

	cost, ok := e.EstimateUSD("grok", models.NewUsage(500_000, 100_000))
	if !ok {
		t.Fatal("EstimateUSD() ok = false")
	}
	want := 1.0 + 1.0
	if math.Abs(cost-want) > 1e-9 {
		t.Errorf("cost = %v, want %v", cost, want)
	}

	if _, ok := e.EstimateUSD("anthropic", models.NewUsage(1, 1)); ok {
		t.Error("EstimateUSD(unpriced provider) ok = true")
	}
}

func TestEstimatorNilRates(t *testing.T) {
	e := NewEstimator(nil)
	if _, ok := e.EstimateUSD("grok", models.NewUsage(10, 10)); ok {
		t.Error("EstimateUSD() ok = true with no rates")
	}
}
