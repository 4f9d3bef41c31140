package stats

import "clinic-management-api/internal/model"

// Identity is the authenticated caller.
type Identity struct {
	ID   string
	Role model.Role
}

// Scope is the closed set of views the dashboard can compute. Only the
// types below implement it.
type Scope interface {
	scope()
}

type AdminScope struct{}

type DoctorScope struct{ DoctorID string }

type PatientScope struct{ PatientID string }

// OtherScope covers unknown roles and identities without an id.
type OtherScope struct{ Role model.Role }

func (AdminScope) scope()   {}
func (DoctorScope) scope()  {}
func (PatientScope) scope() {}
func (OtherScope) scope()   {}

func ScopeOf(id Identity) Scope {
	switch id.Role {
	case model.RoleAdmin:
		return AdminScope{}
	case model.RoleDoctor:
		if id.ID != "" {
			return DoctorScope{DoctorID: id.ID}
		}
	case model.RolePatient:
		if id.ID != "" {
			return PatientScope{PatientID: id.ID}
		}
	}
	return OtherScope{Role: id.Role}
}

// Stats is one of AdminStats, DoctorStats, PatientStats or EmptyStats.
type Stats interface {
	stats()
}

type AdminStats struct {
	TotalUsers          int64 `json:"totalUsers"`
	TotalPatients       int64 `json:"totalPatients"`
	TotalDoctors        int64 `json:"totalDoctors"`
	TotalAppointments   int64 `json:"totalAppointments"`
	TotalAnalyses       int64 `json:"totalAnalyses"`
	PendingAppointments int64 `json:"pendingAppointments"`
}

type DoctorStats struct {
	MyAppointments        int64 `json:"myAppointments"`
	PendingAppointments   int64 `json:"pendingAppointments"`
	CompletedAppointments int64 `json:"completedAppointments"`
	MyAnalyses            int64 `json:"myAnalyses"`
	TotalPatients         int64 `json:"totalPatients"`
}

type PatientStats struct {
	MyAppointments       int64 `json:"myAppointments"`
	UpcomingAppointments int64 `json:"upcomingAppointments"`
	MyReports            int64 `json:"myReports"`
	MyAnalyses           int64 `json:"myAnalyses"`
}

// EmptyStats encodes as {}.
type EmptyStats struct{}

func (AdminStats) stats()   {}
func (DoctorStats) stats()  {}
func (PatientStats) stats() {}
func (EmptyStats) stats()   {}
