package features

import "math"

// Neutral sentinels emitted when an oscillator window has zero range.
// Keeps NaN out of feature vectors per the engine's finiteness contract.
const (
	neutralRSI        = 50.0
	neutralStochastic = 50.0
	neutralWilliamsR  = -50.0
)

// sma computes the simple moving average of xs[i-period+1..i] for each i.
// Indices below period-1 hold zero; callers only read past the warm-up.
func sma(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if period <= 0 || len(xs) < period {
		return out
	}
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema computes the exponential moving average seeded with the first value,
// alpha = 2/(period+1). Seeding is fixed so output is reproducible.
func ema(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1.0-alpha)*out[i-1]
	}
	return out
}

// rollingStd computes the population standard deviation over a trailing window.
func rollingStd(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if period <= 1 || len(xs) < period {
		return out
	}
	sum := 0.0
	sum2 := 0.0
	for i, x := range xs {
		sum += x
		sum2 += x * x
		if i >= period {
			sum -= xs[i-period]
			sum2 -= xs[i-period] * xs[i-period]
		}
		if i >= period-1 {
			n := float64(period)
			mean := sum / n
			variance := sum2/n - mean*mean
			if variance < 0 {
				variance = 0
			}
			out[i] = math.Sqrt(variance)
		}
	}
	return out
}

// rsi computes Wilder-smoothed RSI. A window with zero aggregate movement
// yields the neutral sentinel instead of dividing by zero.
func rsi(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) <= period {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgGain+avgLoss == 0 {
		return neutralRSI
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// stochasticK computes %K over a trailing high/low window.
func stochasticK(highs, lows, closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := period - 1; i < len(closes); i++ {
		hi, lo := highs[i], lows[i]
		for j := i - period + 1; j < i; j++ {
			if highs[j] > hi {
				hi = highs[j]
			}
			if lows[j] < lo {
				lo = lows[j]
			}
		}
		if hi == lo {
			out[i] = neutralStochastic
			continue
		}
		out[i] = 100 * (closes[i] - lo) / (hi - lo)
	}
	return out
}

// williamsR computes Williams %R over a trailing high/low window.
func williamsR(highs, lows, closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := period - 1; i < len(closes); i++ {
		hi, lo := highs[i], lows[i]
		for j := i - period + 1; j < i; j++ {
			if highs[j] > hi {
				hi = highs[j]
			}
			if lows[j] < lo {
				lo = lows[j]
			}
		}
		if hi == lo {
			out[i] = neutralWilliamsR
			continue
		}
		out[i] = -100 * (hi - closes[i]) / (hi - lo)
	}
	return out
}

// atr computes the Wilder-smoothed average true range.
func atr(highs, lows, closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) <= period {
		return out
	}
	tr := make([]float64, len(closes))
	tr[0] = highs[0] - lows[0]
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	p := float64(period)
	for i := period; i < len(closes); i++ {
		out[i] = (out[i-1]*(p-1) + tr[i]) / p
	}
	return out
}

// obv computes cumulative on-balance volume.
func obv(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// logReturns computes r_t = ln(C_t / C_{t-1}); index 0 holds zero.
func logReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out[i] = math.Log(closes[i] / closes[i-1])
	}
	return out
}
