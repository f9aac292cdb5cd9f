package council

import "testing"

func TestPricingEstimator_ExactMatchWinsOverPattern(t *testing.T) {
	p := NewPricingEstimator()
	cost := p.EstimateCost("anthropic/claude-3-opus", 1000)
	// exact row: 0.045 per 1K -> 1000 tokens = 0.045
	if cost != 0.045 {
		t.Errorf("expected exact-match rate 0.045, got %v", cost)
	}
}

func TestPricingEstimator_PatternMatchWhenNoExactRow(t *testing.T) {
	p := NewPricingEstimator()
	cost := p.EstimateCost("some-vendor/claude-3-haiku-20240307", 1000)
	if cost != 0.0008 {
		t.Errorf("expected pattern-match rate 0.0008, got %v", cost)
	}
}

func TestPricingEstimator_DefaultRateWhenUnknown(t *testing.T) {
	p := NewPricingEstimator()
	cost := p.EstimateCost("totally-unknown/model-x", 1000)
	if cost != 0.002 {
		t.Errorf("expected default rate 0.002, got %v", cost)
	}
}

func TestPricingEstimator_ZeroTokensIsFree(t *testing.T) {
	p := NewPricingEstimator()
	if cost := p.EstimateCost("anything", 0); cost != 0 {
		t.Errorf("expected zero cost for zero tokens, got %v", cost)
	}
}
