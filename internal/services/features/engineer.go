package features

import (
	"fmt"

	"FinSight/internal/domain/models"
)

// WarmupBars is the minimum trailing history a feature vector needs.
// SMA-50 is the widest indicator window.
const WarmupBars = 50

// Indicator periods.
const (
	smaShortPeriod   = 20
	smaLongPeriod    = 50
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	macdSignalPeriod = 9
	rsiPeriod        = 14
	bollingerPeriod  = 20
	bollingerWidth   = 2.0
	stochasticPeriod = 14
	stochasticDSMA   = 3
	williamsPeriod   = 14
	atrPeriod        = 14
	momentumLag      = 10
	rocLag           = 10
	volatilityWindow = 20
	volumeSMAPeriod  = 20
)

// ComputeFeatures converts an ordered bar sequence into one FeatureVector
// per index at or past the warm-up. The computation is stateless and
// deterministic: identical input bars produce bit-identical output, and
// every indicator reads only bars up to and including its own index.
func ComputeFeatures(bars []models.Bar) ([]models.FeatureVector, error) {
	if len(bars) < WarmupBars {
		return nil, fmt.Errorf("%w: got %d bars, need %d", models.ErrInsufficientHistory, len(bars), WarmupBars)
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	sma20 := sma(closes, smaShortPeriod)
	sma50 := sma(closes, smaLongPeriod)
	ema12 := ema(closes, emaFastPeriod)
	ema26 := ema(closes, emaSlowPeriod)

	macd := make([]float64, n)
	for i := range macd {
		macd[i] = ema12[i] - ema26[i]
	}
	macdSignal := ema(macd, macdSignalPeriod)

	rsi14 := rsi(closes, rsiPeriod)
	bollStd := rollingStd(closes, bollingerPeriod)
	stochK := stochasticK(highs, lows, closes, stochasticPeriod)
	stochD := sma(stochK, stochasticDSMA)
	willR := williamsR(highs, lows, closes, williamsPeriod)
	atr14 := atr(highs, lows, closes, atrPeriod)
	obvSeries := obv(closes, volumes)
	volStd := rollingStd(logReturns(closes), volatilityWindow)
	volSMA := sma(volumes, volumeSMAPeriod)

	out := make([]models.FeatureVector, 0, n-WarmupBars+1)
	for i := WarmupBars - 1; i < n; i++ {
		volumeRatio := 1.0
		if volSMA[i] > 0 {
			volumeRatio = volumes[i] / volSMA[i]
		}
		roc := 0.0
		if closes[i-rocLag] != 0 {
			roc = 100 * (closes[i] - closes[i-rocLag]) / closes[i-rocLag]
		}

		out = append(out, models.FeatureVector{
			Index:          i,
			Timestamp:      bars[i].Timestamp,
			SMA20:          sma20[i],
			SMA50:          sma50[i],
			EMA12:          ema12[i],
			EMA26:          ema26[i],
			MACD:           macd[i],
			MACDSignal:     macdSignal[i],
			RSI14:          rsi14[i],
			BollingerUpper: sma20[i] + bollingerWidth*bollStd[i],
			BollingerLower: sma20[i] - bollingerWidth*bollStd[i],
			StochasticK:    stochK[i],
			StochasticD:    stochD[i],
			WilliamsR:      willR[i],
			ATR:            atr14[i],
			OBV:            obvSeries[i],
			Momentum:       closes[i] - closes[i-momentumLag],
			RateOfChange:   roc,
			Volatility:     volStd[i],
			VolumeRatio:    volumeRatio,
		})
	}
	return out, nil
}

// Targets builds the supervised regression targets for a feature set:
// the next bar's close, 1-step lag. The last vector has no target and is
// dropped from the training pair; it remains the prediction input.
func Targets(bars []models.Bar, vectors []models.FeatureVector) (train []models.FeatureVector, targets []float64) {
	if len(vectors) == 0 {
		return nil, nil
	}
	train = make([]models.FeatureVector, 0, len(vectors)-1)
	targets = make([]float64, 0, len(vectors)-1)
	for _, v := range vectors {
		next := v.Index + 1
		if next >= len(bars) {
			break
		}
		train = append(train, v)
		targets = append(targets, bars[next].Close)
	}
	return train, targets
}
