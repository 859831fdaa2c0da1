package model

import "time"

type DeviceType string

const (
	DeviceMobile DeviceType = "mobile"
	DevicePC     DeviceType = "pc"
)

// TrainingSession is one live run of a published course version.
// Attendees are append-only while the session is open; CompletedAt is
// set exactly once at close, after which the row is immutable.
//
// CourseTitleSnapshot and TotalDurationSnapshot are copied from the
// course version at open time and never re-read, so later course edits
// cannot alter what a closed session attests to.
type TrainingSession struct {
	UUIDBase
	CourseID              uint       `gorm:"index;type:bigint unsigned" json:"courseId"`
	CourseVersionID       uint       `gorm:"index;type:bigint unsigned" json:"courseVersionId"`
	CourseTitleSnapshot   string     `gorm:"size:255;not null" json:"courseTitleSnapshot"`
	TotalDurationSnapshot int        `gorm:"default:0" json:"totalDurationSnapshot"`
	OwnerID               uint       `gorm:"index;type:bigint unsigned" json:"ownerId"`
	StartedAt             time.Time  `json:"startedAt"`
	Token                 string     `gorm:"type:text" json:"token"`
	TokenIssuedAt         time.Time  `json:"tokenIssuedAt"`
	TokenExpiresAt        time.Time  `json:"tokenExpiresAt"`
	CompletedAt           *time.Time `json:"completedAt"`
	// ByNationality is the serialized nationality tally, written at
	// close time. While the session is open the live tally is owned by
	// the session hub.
	ByNationality string     `gorm:"type:text" json:"-"`
	Attendees     []Attendee `gorm:"foreignKey:SessionID" json:"attendees,omitempty"`
}

func (TrainingSession) TableName() string {
	return "training_sessions"
}

// Attendee is one trainee's verified completion record. It is created
// exactly once by the session aggregator and is never mutated or
// deleted afterwards; it is legal evidence.
type Attendee struct {
	UUIDBase
	SessionID    string     `gorm:"index;type:varchar(36);not null" json:"sessionId"`
	Position     int        `gorm:"not null" json:"position"` // acceptance order within the session
	Name         string     `gorm:"size:100;not null" json:"name"`
	Nationality  string     `gorm:"size:2;not null" json:"nationality"`
	Language     string     `gorm:"size:10" json:"language"`
	SelfieURL    string     `gorm:"size:512;not null" json:"selfieUrl"`
	SignatureURL string     `gorm:"size:512;not null" json:"signatureUrl"`
	GPSLatitude  *float64   `json:"gpsLatitude,omitempty"`
	GPSLongitude *float64   `json:"gpsLongitude,omitempty"`
	DeviceType   DeviceType `gorm:"type:enum('mobile','pc');default:'mobile'" json:"deviceType"`
	ConsentGiven bool       `gorm:"not null" json:"consentGiven"`
	ConsentAt    time.Time  `json:"consentAt"`
	CompletedAt  time.Time  `json:"completedAt"`
}

func (Attendee) TableName() string {
	return "attendees"
}

// SessionRecord is the frozen output handed to certificate and report
// renderers once a session is closed.
type SessionRecord struct {
	SessionID             string         `json:"sessionId"`
	CourseID              uint           `json:"courseId"`
	CourseVersionID       uint           `json:"courseVersionId"`
	CourseTitle           string         `json:"courseTitle"`
	TotalDurationSeconds  int            `json:"totalDurationSeconds"`
	StartedAt             time.Time      `json:"startedAt"`
	CompletedAt           time.Time      `json:"completedAt"`
	TokenIssuedAt         time.Time      `json:"tokenIssuedAt"`
	TokenExpiresAt        time.Time      `json:"tokenExpiresAt"`
	AttendeeCount         int            `json:"attendeeCount"`
	ByNationality         map[string]int `json:"byNationality"`
	Attendees             []Attendee     `json:"attendees"`
}

// SessionStats is the live view polled by the operator dashboard while
// a session is open.
type SessionStats struct {
	SessionID     string         `json:"sessionId"`
	AttendeeCount int            `json:"attendeeCount"`
	ByNationality map[string]int `json:"byNationality"`
	TokenExpired  bool           `json:"tokenExpired"`
	Closed        bool           `json:"closed"`
}
