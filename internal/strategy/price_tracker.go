package strategy

import (
	"math"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// closes extracts closing prices, oldest first.
func closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA returns the mean of the last n values, or 0 if there are fewer than n.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// Returns computes simple bar-to-bar returns. Bars with a non-positive
// previous close are skipped.
func Returns(bars []domain.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		out = append(out, (bars[i].Close-prev)/prev)
	}
	return out
}

// Volatility is the population standard deviation of bar returns. It is
// 0 when fewer than two returns are available.
func Volatility(bars []domain.Bar) float64 {
	r := Returns(bars)
	if len(r) < 2 {
		return 0
	}
	_, sd := meanStd(r)
	return sd
}

// DetectFlashCrash reports whether the last close is more than threshold
// (a fraction) below the mean of the preceding closes.
func DetectFlashCrash(bars []domain.Bar, threshold float64) bool {
	if len(bars) < 2 {
		return false
	}
	avg, _ := meanStd(closes(bars[:len(bars)-1]))
	if avg == 0 {
		return false
	}
	drop := (avg - bars[len(bars)-1].Close) / avg
	return drop >= threshold
}
