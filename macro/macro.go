// Package macro is the macro half of the Macro & Political Collectors
// (C7): pulls six FRED series (yield curve, fed funds, unemployment, M2,
// high-yield spread, consumer sentiment), applies a signal-adjustment table
// to a 50-neutral baseline, and derives the DEFCON modifier band.
//
// Grounded line-for-line on original_source/fred_macro.py's
// run_full_analysis: the same per-indicator thresholds and score
// adjustments, translated from a signals-list-plus-dict accumulation
// into a pure function over an Indicators struct.
package macro

// Indicators is one cycle's raw pull of the six tracked FRED series.
// A series whose Has* flag is false is treated as unavailable and
// skipped; a zero value with its flag set is scored as-is.
type Indicators struct {
	YieldCurveSpread   float64 // DGS10 - DGS2
	FedFunds3MChange   float64
	Unemployment3MChange float64
	UnemploymentRate   float64
	M2YoYChange        float64
	HYOASBps           float64
	ConsumerSentiment  float64

	HasYieldCurve      bool
	HasFedFunds3M      bool
	HasUnemployment    bool
	HasM2YoY           bool
	HasHYOAS           bool
	HasConsumerSent    bool
}

// Signal is one interpreted indicator reading, mirroring the Python
// source's signals list entries.
type Signal struct {
	Type        string
	Severity    string // "bearish" | "caution" | "neutral" | "bullish"
	Description string
}

// Result bundles the composite macro score, its DEFCON modifier, and the
// signal descriptors driving it.
type Result struct {
	CompositeScore float64
	DefconModifier float64
	Signals        []Signal
}

// Compute implements the full adjustment table and the 50-neutral
// composite, clamped to [0, 100], then maps it to a DEFCON modifier band.
func Compute(in Indicators) Result {
	var adjustments float64
	var signals []Signal

	if in.HasYieldCurve {
		switch {
		case in.YieldCurveSpread < 0:
			signals = append(signals, Signal{"yield_curve_inverted", "bearish", "yield curve inverted — recession risk elevated"})
			adjustments += -20
		case in.YieldCurveSpread < 0.5:
			signals = append(signals, Signal{"yield_curve_flat", "caution", "yield curve flat — slowing growth signal"})
			adjustments += -10
		default:
			signals = append(signals, Signal{"yield_curve_normal", "neutral", "yield curve normal"})
			adjustments += 5
		}
	}

	if in.HasFedFunds3M {
		switch {
		case in.FedFunds3MChange > 0.5:
			signals = append(signals, Signal{"fed_tightening", "bearish", "fed tightening fast — liquidity squeeze risk"})
			adjustments += -15
		case in.FedFunds3MChange < -0.25:
			signals = append(signals, Signal{"fed_easing", "bullish", "fed easing — supportive for risk assets"})
			adjustments += 10
		}
	}

	if in.HasUnemployment {
		switch {
		case in.Unemployment3MChange > 0.3:
			signals = append(signals, Signal{"unemployment_rising", "bearish", "unemployment rising"})
			adjustments += -15
		case in.UnemploymentRate > 5.5:
			signals = append(signals, Signal{"unemployment_elevated", "caution", "unemployment elevated"})
			adjustments += -8
		case in.UnemploymentRate < 4:
			signals = append(signals, Signal{"unemployment_low", "bullish", "unemployment low"})
			adjustments += 5
		}
	}

	if in.HasM2YoY {
		switch {
		case in.M2YoYChange < -2:
			signals = append(signals, Signal{"m2_contracting", "bearish", "M2 contracting — liquidity draining from system"})
			adjustments += -12
		case in.M2YoYChange > 8:
			signals = append(signals, Signal{"m2_expanding_fast", "caution", "M2 expanding rapidly — inflationary pressure"})
			adjustments += -5
		}
	}

	if in.HasHYOAS {
		switch {
		case in.HYOASBps > 500:
			signals = append(signals, Signal{"credit_stress_extreme", "bearish", "HY credit spreads extreme — credit crisis risk"})
			adjustments += -25
		case in.HYOASBps > 350:
			signals = append(signals, Signal{"credit_stress_elevated", "caution", "HY credit spreads elevated — financial stress"})
			adjustments += -12
		case in.HYOASBps < 250:
			signals = append(signals, Signal{"credit_spreads_tight", "bullish", "HY credit spreads tight — risk appetite healthy"})
			adjustments += 8
		}
	}

	if in.HasConsumerSent {
		switch {
		case in.ConsumerSentiment < 65:
			signals = append(signals, Signal{"consumer_pessimistic", "bearish", "consumer sentiment low — demand slowdown risk"})
			adjustments += -8
		case in.ConsumerSentiment > 80:
			signals = append(signals, Signal{"consumer_optimistic", "bullish", "consumer sentiment strong"})
			adjustments += 5
		}
	}

	score := 50 + adjustments
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		CompositeScore: score,
		DefconModifier: defconModifier(score),
		Signals:        signals,
	}
}

// defconModifier converts a 0-100 macro score to the DEFCON modifier
// band: <30 bearish (-1), 30-40 mild bearish (-0.5), >70 bullish (+0.5),
// else neutral (0).
func defconModifier(score float64) float64 {
	switch {
	case score < 30:
		return -1
	case score < 40:
		return -0.5
	case score > 70:
		return 0.5
	default:
		return 0
	}
}
