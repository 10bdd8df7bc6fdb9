package analytics

import (
	"fmt"
	"math"

	"qms/dashboard-service/internal/models"
)

type TellerStats struct {
	TellerID         string  `json:"teller_id"`
	Name             string  `json:"name"`
	VisitorsServed   int     `json:"visitors_served"`
	TotalServiceTime float64 `json:"total_service_minutes"`
	AvgServiceTime   float64 `json:"avg_service_minutes"`
	TotalWaitingTime float64 `json:"total_waiting_minutes"`
	AvgWaitingTime   float64 `json:"avg_waiting_minutes"`
	TotalServiceText string  `json:"total_service_time"`
	AvgServiceText   string  `json:"avg_service_time"`
	TotalWaitingText string  `json:"total_waiting_time"`
	AvgWaitingText   string  `json:"avg_waiting_time"`
}

// TeamPerformance builds one row per teller, in teller order, from the
// visits each teller handled. Tellers without visits get a zero row.
func TeamPerformance(tellers []models.Teller, visits []models.Visit) []TellerStats {
	byTeller := make(map[string][]models.Visit)
	for _, v := range visits {
		if v.TellerID == "" {
			continue
		}
		byTeller[v.TellerID] = append(byTeller[v.TellerID], v)
	}

	stats := make([]TellerStats, 0, len(tellers))
	for _, teller := range tellers {
		handled := byTeller[teller.TellerID]
		row := TellerStats{TellerID: teller.TellerID, Name: teller.Name, VisitorsServed: len(handled)}
		for _, v := range handled {
			row.TotalServiceTime += minutes(v.ServingTime)
			row.TotalWaitingTime += minutes(v.WaitingTime)
		}
		if row.VisitorsServed > 0 {
			row.AvgServiceTime = row.TotalServiceTime / float64(row.VisitorsServed)
			row.AvgWaitingTime = row.TotalWaitingTime / float64(row.VisitorsServed)
		}
		row.TotalServiceText = FormatClock(row.TotalServiceTime)
		row.AvgServiceText = FormatClock(row.AvgServiceTime)
		row.TotalWaitingText = FormatClock(row.TotalWaitingTime)
		row.AvgWaitingText = FormatClock(row.AvgWaitingTime)
		stats = append(stats, row)
	}
	return stats
}

// FormatClock renders a duration given in minutes as HH:MM:SS.
func FormatClock(mins float64) string {
	if mins < 0 || math.IsNaN(mins) {
		mins = 0
	}
	hours := int(math.Floor(mins / 60))
	m := int(math.Floor(math.Mod(mins, 60)))
	s := int(math.Floor(math.Mod(mins*60, 60)))
	return fmt.Sprintf("%02d:%02d:%02d", hours, m, s)
}
