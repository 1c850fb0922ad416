package features

import "math"

// epsilon substitutes any denominator computed as exactly zero so indicator
// math never raises a floating-point fault or emits Inf.
const epsilon = 1e-10

var nan = math.NaN()

func safeDiv(num, den float64) float64 {
	if den == 0 {
		den = epsilon
	}
	return num / den
}

// EMA computes an exponential moving average with alpha = 2/(period+1),
// seeded with the first value. Defined from index 0.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// SMA computes a rolling simple moving average. Positions with fewer than
// period values behind them are undefined.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i := range values {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		} else {
			out[i] = nan
		}
	}
	return out
}

// RSI computes the relative strength index over rolling mean gain/loss.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = nan
	}
	if len(closes) < period+1 {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	var gSum, lSum float64
	for i := 1; i < len(closes); i++ {
		gSum += gains[i]
		lSum += losses[i]
		if i > period {
			gSum -= gains[i-period]
			lSum -= losses[i-period]
		}
		if i >= period {
			rs := safeDiv(gSum/float64(period), lSum/float64(period))
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// WaveTrend computes a Wave-Trend-style oscillator: EMA(10) of HLC3 minus
// its 11-bar mean, normalized by the 11-bar standard deviation.
func WaveTrend(highs, lows, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	hlc3 := make([]float64, n)
	for i := 0; i < n; i++ {
		hlc3[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	ema10 := EMA(hlc3, 10)
	const window = 11
	for i := 0; i < n; i++ {
		if i < window-1 {
			out[i] = nan
			continue
		}
		mean, std := meanStd(hlc3[i-window+1 : i+1])
		out[i] = safeDiv(ema10[i]-mean, std)
	}
	return out
}

// CCI computes the commodity channel index over typical price.
func CCI(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	tp := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	for i := 0; i < n; i++ {
		if i < period-1 {
			out[i] = nan
			continue
		}
		win := tp[i-period+1 : i+1]
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(period)
		mad := 0.0
		for _, v := range win {
			mad += math.Abs(v - mean)
		}
		mad /= float64(period)
		out[i] = safeDiv(tp[i]-mean, 0.015*mad)
	}
	return out
}

// ADX computes a smoothed directional index: rolling-mean DI spread over
// true range, then a rolling mean of DX.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	if n < 2*period+1 {
		return out
	}
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
	}
	dx := make([]float64, n)
	for i := range dx {
		dx[i] = nan
	}
	var pSum, mSum, trSum float64
	for i := 1; i < n; i++ {
		pSum += plusDM[i]
		mSum += minusDM[i]
		trSum += tr[i]
		if i > period {
			pSum -= plusDM[i-period]
			mSum -= minusDM[i-period]
			trSum -= tr[i-period]
		}
		if i >= period {
			pdi := 100 * safeDiv(pSum, trSum)
			mdi := 100 * safeDiv(mSum, trSum)
			dx[i] = 100 * safeDiv(math.Abs(pdi-mdi), pdi+mdi)
		}
	}
	var dxSum float64
	var dxN int
	for i := period; i < n; i++ {
		dxSum += dx[i]
		dxN++
		if dxN > period {
			dxSum -= dx[i-period]
			dxN = period
		}
		if dxN == period {
			out[i] = dxSum / float64(period)
		}
	}
	return out
}

// RollingVolatility computes the rolling standard deviation of simple
// returns over lookback returns. Undefined until enough history exists.
func RollingVolatility(closes []float64, lookback int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	if n < 2 || lookback < 2 {
		return out
	}
	rets := make([]float64, n)
	for i := 1; i < n; i++ {
		rets[i] = safeDiv(closes[i]-closes[i-1], closes[i-1])
	}
	for i := lookback; i < n; i++ {
		_, std := meanStd(rets[i-lookback+1 : i+1])
		out[i] = std
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	var sq float64
	for _, v := range xs {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
