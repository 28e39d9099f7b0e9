package indicator

import "testing"

func TestRSI_InsufficientData(t *testing.T) {
	closes := []float64{100, 101, 102}
	if _, ok := RSI(closes, 14); ok {
		t.Error("Expected RSI to be unavailable with fewer than period+1 closes")
	}
}

func TestRSI_InvalidPeriod(t *testing.T) {
	closes := []float64{100, 101, 102, 103}
	if _, ok := RSI(closes, 1); ok {
		t.Error("Expected RSI to reject period < 2")
	}
}

func TestRSI_AllGains(t *testing.T) {
	// Strictly rising closes: no losses, RSI should sit at the top of the range
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	value, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("Expected RSI to be computable")
	}
	if value < 95 || value > 100 {
		t.Errorf("Expected RSI near 100 for strictly rising closes, got %f", value)
	}
}

func TestRSI_AllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}

	value, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("Expected RSI to be computable")
	}
	if value < 0 || value > 5 {
		t.Errorf("Expected RSI near 0 for strictly falling closes, got %f", value)
	}
}

func TestRSI_Bounded(t *testing.T) {
	// Mixed series with extreme swings must stay inside [0, 100]
	closes := []float64{100, 150, 50, 200, 10, 300, 5, 400, 2, 500, 1, 600, 0.5, 700, 0.1, 800}
	value, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("Expected RSI to be computable")
	}
	if value < 0 || value > 100 {
		t.Errorf("RSI out of range: %f", value)
	}
}

func TestRSI_NeutralSeries(t *testing.T) {
	// Alternating equal gains and losses should land near the middle
	closes := make([]float64, 30)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}

	value, ok := RSI(closes, 14)
	if !ok {
		t.Fatal("Expected RSI to be computable")
	}
	if value < 30 || value > 70 {
		t.Errorf("Expected mid-range RSI for neutral series, got %f", value)
	}
}
