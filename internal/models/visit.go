package models

import "time"

// Visit is one customer's pass through the queue. Visits are created and
// progressed by the kiosk; the dashboard only reads them.
type Visit struct {
	VisitID          string     `json:"visit_id"`
	ServiceID        string     `json:"service_id"`
	DeskID           string     `json:"desk_id,omitempty"`
	TellerID         string     `json:"teller_id,omitempty"`
	Status           string     `json:"status"`
	JoinedOn         time.Time  `json:"joined_on"`
	StartServingTime *time.Time `json:"start_serving_time,omitempty"`
	CompletedOn      *time.Time `json:"completed_on,omitempty"`
	CreatedOn        time.Time  `json:"created_on"`
	WaitingTime      *float64   `json:"waiting_time,omitempty"`
	ServingTime      *float64   `json:"serving_time,omitempty"`
	TotalTime        *float64   `json:"total_time,omitempty"`
	QueueCode        string     `json:"queue_code"`
	CustomerName     string     `json:"customer_name"`
}

const (
	StatusPending   = "pending"
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusCompleted = "completed"
)

// Statuses lists visit statuses in progression order.
var Statuses = []string{StatusPending, StatusWaiting, StatusServing, StatusCompleted}

var statusRank = map[string]int{
	StatusPending:   0,
	StatusWaiting:   1,
	StatusServing:   2,
	StatusCompleted: 3,
}

func ValidStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// ValidProgression reports whether a visit may move from one status to
// another. Staying in place is allowed; moving backwards is not.
func ValidProgression(from, to string) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank >= fromRank
}

// Anchor returns the timestamp elapsed time is measured from for the
// visit's current status.
func (v Visit) Anchor() (time.Time, bool) {
	switch v.Status {
	case StatusPending, StatusWaiting:
		return v.JoinedOn, !v.JoinedOn.IsZero()
	case StatusServing:
		if v.StartServingTime == nil {
			return time.Time{}, false
		}
		return *v.StartServingTime, true
	default:
		return time.Time{}, false
	}
}
