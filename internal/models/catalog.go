package models

import "time"

type Service struct {
	ServiceID string    `json:"service_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedOn time.Time `json:"created_on"`
}

type Desk struct {
	DeskID    string    `json:"desk_id"`
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	CreatedOn time.Time `json:"created_on"`
}

type Teller struct {
	TellerID   string    `json:"teller_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	DeskID     string    `json:"desk_id"`
	ServiceIDs []string  `json:"service_ids"`
	Enabled    bool      `json:"enabled"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedOn  time.Time `json:"created_on"`
}

// OpeningHours holds one weekday's schedule. Times are "HH:MM".
type OpeningHours struct {
	Day       string `json:"day"`
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

const (
	DefaultOpeningTime = "08:00"
	DefaultClosingTime = "16:00"
)

var WeekDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

type LogEntry struct {
	LogID     string    `json:"log_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Email     string    `json:"email"`
}

type AdminProfile struct {
	AdminID   string `json:"admin_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	AdminID   string    `json:"admin_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Display labels for references that point at no record.
const (
	UnknownService = "Unknown Service"
	UnknownDesk    = "Unknown Desk"
	UnknownTeller  = "Unknown Teller"
)
