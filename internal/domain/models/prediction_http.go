package models

// Requests for engine HTTP endpoints. Defined in domain for consistency and reuse.

type PredictionRequest struct {
	Ticker   string `query:"ticker" json:"ticker" validate:"required,min=1,max=12"`
	Lookback int    `query:"lookback" json:"lookback" validate:"gte=0,lte=1825"`
}

type ChartRequest struct {
	Ticker   string `query:"ticker" json:"ticker" validate:"required,min=1,max=12"`
	Lookback int    `query:"lookback" json:"lookback" default:"90" validate:"gte=0,lte=1825"`
}

type HistoryRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,min=1,max=12"`
	Hours  int    `query:"hours" json:"hours" default:"24" validate:"gte=1,lte=720"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AlertCreateRequest struct {
	Ticker     string  `json:"ticker" validate:"required,min=1,max=12"`
	Comparison string  `json:"comparison" default:"above" validate:"oneof=above below"`
	Threshold  float64 `json:"threshold" validate:"required,gt=0"`
}
