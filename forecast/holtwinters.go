/*
holtwinters.go - Additive Holt-Winters smoothing

PURPOSE:
  Triple exponential smoothing with additive trend and additive
  seasonality. The three smoothing factors are chosen by a coarse grid
  search minimizing in-sample squared error; a fixed grid keeps the fit
  fully deterministic, which matters more here than squeezing out the
  last percent of accuracy.
*/
package forecast

// hwModel is a fitted model: the final level and trend plus the last
// full cycle of seasonal offsets.
type hwModel struct {
	level    float64
	trend    float64
	seasonal []float64
}

// forecast projects h steps past the end of the fitted series.
func (m *hwModel) forecast(h int) float64 {
	season := m.seasonal[(h-1)%len(m.seasonal)]
	return m.level + float64(h)*m.trend + season
}

// fitHoltWinters searches the smoothing factors over a 0.1-step grid and
// keeps the parameters with the lowest in-sample squared error. Ties keep
// the earliest candidate, so the fit never varies between runs.
func fitHoltWinters(values []float64, seasonLength int) *hwModel {
	grid := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}

	var best *hwModel
	bestSSE := 0.0
	for _, alpha := range grid {
		for _, beta := range grid {
			for _, gamma := range grid {
				model, sse := smooth(values, seasonLength, alpha, beta, gamma)
				if best == nil || sse < bestSSE {
					best = model
					bestSSE = sse
				}
			}
		}
	}
	return best
}

// smooth runs one pass of the recurrence. The first two seasons seed the
// initial level, trend and seasonal offsets; the error accumulates over
// the remaining points.
func smooth(values []float64, m int, alpha, beta, gamma float64) (*hwModel, float64) {
	n := len(values)
	seasonal := make([]float64, n)

	var firstMean, secondMean float64
	for i := 0; i < m; i++ {
		firstMean += values[i]
		secondMean += values[m+i]
	}
	firstMean /= float64(m)
	secondMean /= float64(m)

	level := firstMean
	trend := (secondMean - firstMean) / float64(m)
	for i := 0; i < m; i++ {
		seasonal[i] = values[i] - firstMean
	}

	var sse float64
	for t := m; t < n; t++ {
		fitted := level + trend + seasonal[t-m]
		residual := values[t] - fitted
		sse += residual * residual

		prevLevel := level
		level = alpha*(values[t]-seasonal[t-m]) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		seasonal[t] = gamma*(values[t]-level) + (1-gamma)*seasonal[t-m]
	}

	return &hwModel{level: level, trend: trend, seasonal: seasonal[n-m:]}, sse
}
