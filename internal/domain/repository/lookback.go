package repository

// Lookback bounds for bar fetches, in days of daily bars.
const (
	MinLookbackDays     = 60
	DefaultLookbackDays = 365
	MaxLookbackDays     = 1825
)

// ClampLookback normalizes a requested lookback to the supported range.
func ClampLookback(days int) int {
	if days <= 0 {
		return DefaultLookbackDays
	}
	if days < MinLookbackDays {
		return MinLookbackDays
	}
	if days > MaxLookbackDays {
		return MaxLookbackDays
	}
	return days
}
