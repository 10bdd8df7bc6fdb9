package analytics

import (
	"math"

	"qms/dashboard-service/internal/models"
)

type Metric struct {
	Value         float64 `json:"value"`
	ChangePercent float64 `json:"change_percent"`
}

// Summary is the set of metric cards shown for a period.
type Summary struct {
	Customers      Metric `json:"customers"`
	AvgWaitTime    Metric `json:"avg_wait_time"`
	AvgServiceTime Metric `json:"avg_service_time"`
}

// Summarize compares the visits of a period with those of the period before
// it. Averages are rounded for display; change is computed on the exact
// averages. Visits missing a duration count as zero.
func Summarize(current, previous []models.Visit) Summary {
	curWait := AverageOrZero(durations(current, waitingTime))
	prevWait := AverageOrZero(durations(previous, waitingTime))
	curServe := AverageOrZero(durations(current, servingTime))
	prevServe := AverageOrZero(durations(previous, servingTime))

	return Summary{
		Customers: Metric{
			Value:         float64(len(current)),
			ChangePercent: PercentChange(float64(len(current)), float64(len(previous))),
		},
		AvgWaitTime: Metric{
			Value:         math.Round(curWait),
			ChangePercent: PercentChange(curWait, prevWait),
		},
		AvgServiceTime: Metric{
			Value:         math.Round(curServe),
			ChangePercent: PercentChange(curServe, prevServe),
		},
	}
}

func waitingTime(v models.Visit) *float64 { return v.WaitingTime }
func servingTime(v models.Visit) *float64 { return v.ServingTime }

func durations(visits []models.Visit, field func(models.Visit) *float64) []float64 {
	values := make([]float64, 0, len(visits))
	for _, v := range visits {
		values = append(values, minutes(field(v)))
	}
	return values
}

func minutes(value *float64) float64 {
	if value == nil {
		return 0
	}
	return *value
}
