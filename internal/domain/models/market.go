package models

import "time"

// Bar represents a single OHLCV record for a ticker. Bars are fetched from
// the data provider, ordered by timestamp, and never mutated afterwards.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Quote is a live price observation from the provider stream.
type Quote struct {
	Ticker    string
	Price     float64
	Timestamp time.Time
}

// FeatureVector holds the 18 engineered indicators for one bar index.
// Every field is a finite number; indicators that divide by a zero range
// (RSI, Stochastic) emit the neutral sentinel 50 instead of NaN.
type FeatureVector struct {
	Index     int
	Timestamp time.Time

	SMA20          float64
	SMA50          float64
	EMA12          float64
	EMA26          float64
	MACD           float64
	MACDSignal     float64
	RSI14          float64
	BollingerUpper float64
	BollingerLower float64
	StochasticK    float64
	StochasticD    float64
	WilliamsR      float64
	ATR            float64
	OBV            float64
	Momentum       float64
	RateOfChange   float64
	Volatility     float64
	VolumeRatio    float64
}

// Values returns the indicator fields as a fixed-order slice for model input.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.SMA20, f.SMA50, f.EMA12, f.EMA26,
		f.MACD, f.MACDSignal, f.RSI14,
		f.BollingerUpper, f.BollingerLower,
		f.StochasticK, f.StochasticD, f.WilliamsR,
		f.ATR, f.OBV, f.Momentum, f.RateOfChange,
		f.Volatility, f.VolumeRatio,
	}
}

// FeatureCount is the width of a feature vector.
const FeatureCount = 18
