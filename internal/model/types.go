package model

import "time"

type Action string

const (
	ActionCheckin  Action = "checkin"
	ActionCheckout Action = "checkout"
)

type RejectReason string

const (
	RejectProcessing   RejectReason = "processing"
	RejectCooldown     RejectReason = "cooldown"
	RejectDuplicate    RejectReason = "duplicate_payload"
	RejectStillVisible RejectReason = "still_visible"
)

// ScanEvent is a single decoded QR detection. Ephemeral: it lives only
// between the decode adapter and the toggle dispatch for that scan.
type ScanEvent struct {
	EventID    string    `json:"event_id"`
	Payload    string    `json:"payload"`
	UserID     string    `json:"user_id"`
	DetectedAt time.Time `json:"detected_at"`
	Source     string    `json:"source,omitempty"`
}

// ScanDecision records what the gate did with a detection.
type ScanDecision struct {
	Timestamp time.Time    `json:"timestamp"`
	StationID string       `json:"station_id"`
	EventID   string       `json:"event_id"`
	UserID    string       `json:"user_id,omitempty"`
	Accepted  bool         `json:"accepted"`
	Reason    RejectReason `json:"reason,omitempty"`
}

// AttendanceUser is the backend's projection of the member a record
// belongs to. Read-only on this side.
type AttendanceUser struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone,omitempty"`
}

type AttendanceRecord struct {
	User         AttendanceUser `json:"user"`
	CheckinTime  time.Time      `json:"checkinTime"`
	CheckoutTime *time.Time     `json:"checkoutTime,omitempty"`
	Hours        float64        `json:"hours,omitempty"`
}

// ToggleResult is the server-arbitrated outcome of an attendance toggle.
type ToggleResult struct {
	Action Action           `json:"action"`
	Record AttendanceRecord `json:"record"`
}

// RecentAction is the display projection of the latest successful toggle.
type RecentAction struct {
	Timestamp time.Time      `json:"timestamp"`
	User      AttendanceUser `json:"user"`
	Action    Action         `json:"action"`
	Hours     float64        `json:"hours,omitempty"`
	EventID   string         `json:"event_id,omitempty"`
}
