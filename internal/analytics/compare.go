package analytics

// PercentChange reports the change from previous to current as a
// percentage. A zero previous value always reports 100, even when current
// is also zero.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 100
	}
	return (current - previous) / previous * 100
}

// AverageOrZero returns the arithmetic mean of values, or 0 when empty.
func AverageOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
