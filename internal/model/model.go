package model

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RolePatient
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// collection names, shared by every backend
const (
	Users        = "users"
	Appointments = "appointments"
	Analyses     = "analyses"
	Reports      = "reports"
)

type User struct {
	ID               string    `json:"id" bson:"_id"`
	Name             string    `json:"name" bson:"name"`
	Email            string    `json:"email" bson:"email"`
	PasswordHash     string    `json:"password,omitempty" bson:"password,omitempty"`
	Role             Role      `json:"role" bson:"role"`
	Phone            string    `json:"phone,omitempty" bson:"phone,omitempty"`
	DateOfBirth      string    `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Address          string    `json:"address,omitempty" bson:"address,omitempty"`
	Specialization   string    `json:"specialization,omitempty" bson:"specialization,omitempty"`
	LicenseNumber    string    `json:"licenseNumber,omitempty" bson:"licenseNumber,omitempty"`
	BloodGroup       string    `json:"bloodGroup,omitempty" bson:"bloodGroup,omitempty"`
	EmergencyContact string    `json:"emergencyContact,omitempty" bson:"emergencyContact,omitempty"`
	IsActive         bool      `json:"isActive" bson:"isActive"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (u User) Key() string { return u.ID }

// Public drops the password hash before the user leaves the service.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type Appointment struct {
	ID              string    `json:"id" bson:"_id"`
	Doctor          string    `json:"doctor" bson:"doctor"`
	Patient         string    `json:"patient" bson:"patient"`
	Status          Status    `json:"status" bson:"status"`
	AppointmentDate time.Time `json:"appointmentDate" bson:"appointmentDate"`
	TimeSlot        string    `json:"timeSlot,omitempty" bson:"timeSlot,omitempty"`
	Reason          string    `json:"reason,omitempty" bson:"reason,omitempty"`
	Notes           string    `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (a Appointment) Key() string { return a.ID }

// Day returns the calendar date of t, read in t's own location, as UTC
// midnight. Appointment dates are stored and compared in this form.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Diagnosis struct {
	Condition   string  `json:"condition" bson:"condition"`
	Probability float64 `json:"probability" bson:"probability"`
}

type AIResponse struct {
	Severity          string      `json:"severity,omitempty" bson:"severity,omitempty"`
	Confidence        float64     `json:"confidence,omitempty" bson:"confidence,omitempty"`
	PossibleDiagnosis []Diagnosis `json:"possibleDiagnosis,omitempty" bson:"possibleDiagnosis,omitempty"`
	Recommendations   []string    `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
}

type Analysis struct {
	ID         string      `json:"id" bson:"_id"`
	Doctor     string      `json:"doctor,omitempty" bson:"doctor,omitempty"`
	Patient    string      `json:"patient" bson:"patient"`
	Symptoms   string      `json:"symptoms,omitempty" bson:"symptoms,omitempty"`
	AIResponse *AIResponse `json:"aiResponse,omitempty" bson:"aiResponse,omitempty"`
	Accuracy   *float64    `json:"accuracy" bson:"accuracy"`
	CreatedAt  time.Time   `json:"createdAt" bson:"createdAt"`
}

func (a Analysis) Key() string { return a.ID }

type Report struct {
	ID          string    `json:"id" bson:"_id"`
	Patient     string    `json:"patient" bson:"patient"`
	Doctor      string    `json:"doctor,omitempty" bson:"doctor,omitempty"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

func (r Report) Key() string { return r.ID }
