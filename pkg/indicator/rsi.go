package indicator

import (
	"math"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// RSI computes the Relative Strength Index over a series of closing prices.
// RSI = 100 - (100 / (1 + RS)), RS = Average Gain / Average Loss over the period.
// Returns (0, false) when fewer than period+1 closes are available or the
// value cannot be computed.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 2 || len(closes) < period+1 {
		return 0, false
	}

	series := techan.NewTimeSeries()
	base := time.Unix(0, 0)
	for i, c := range closes {
		candle := techan.NewCandle(techan.NewTimePeriod(base.Add(time.Duration(i)*time.Minute), time.Minute))
		candle.OpenPrice = big.NewDecimal(c)
		candle.MaxPrice = big.NewDecimal(c)
		candle.MinPrice = big.NewDecimal(c)
		candle.ClosePrice = big.NewDecimal(c)
		series.AddCandle(candle)
	}

	rsi := techan.NewRelativeStrengthIndexIndicator(techan.NewClosePriceIndicator(series), period)
	value := rsi.Calculate(series.LastIndex()).Float()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	// Clamp against rounding drift at the extremes
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, true
}
