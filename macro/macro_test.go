package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeutralIndicatorsYieldBaseline(t *testing.T) {
	r := Compute(Indicators{})
	assert.Equal(t, 50.0, r.CompositeScore)
	assert.Equal(t, 0.0, r.DefconModifier)
	assert.Empty(t, r.Signals)
}

func TestInvertedYieldCurveDrivesBearishModifier(t *testing.T) {
	r := Compute(Indicators{YieldCurveSpread: -0.3, HasYieldCurve: true})
	assert.Equal(t, 30.0, r.CompositeScore) // 50 - 20
	assert.Equal(t, -0.5, r.DefconModifier)
}

func TestSeverelyStressedCompositeClampsAtZero(t *testing.T) {
	r := Compute(Indicators{
		YieldCurveSpread: -1, HasYieldCurve: true,
		FedFunds3MChange: 1, HasFedFunds3M: true,
		Unemployment3MChange: 1, HasUnemployment: true,
		M2YoYChange: -5, HasM2YoY: true,
		HYOASBps: 600, HasHYOAS: true,
		ConsumerSentiment: 50, HasConsumerSent: true,
	})
	assert.Equal(t, 0.0, r.CompositeScore)
	assert.Equal(t, -1.0, r.DefconModifier)
}

func TestBullishCompositeYieldsPositiveModifier(t *testing.T) {
	r := Compute(Indicators{
		YieldCurveSpread: 1, HasYieldCurve: true,
		FedFunds3MChange: -0.5, HasFedFunds3M: true,
		UnemploymentRate: 3.5, HasUnemployment: true,
		HYOASBps: 200, HasHYOAS: true,
		ConsumerSentiment: 85, HasConsumerSent: true,
	})
	assert.Greater(t, r.CompositeScore, 70.0)
	assert.Equal(t, 0.5, r.DefconModifier)
}

func TestMissingSeriesAreSkippedNotZeroed(t *testing.T) {
	r := Compute(Indicators{YieldCurveSpread: -5, HasYieldCurve: false})
	assert.Equal(t, 50.0, r.CompositeScore, "unavailable series must not contribute an adjustment")
}
