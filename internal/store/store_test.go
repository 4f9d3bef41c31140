package store

import (
	"testing"
	"time"

	"clinic-management-api/internal/model"
)

func TestFilterMatchesUsers(t *testing.T) {
	u := model.User{ID: "1", Name: "Ada Lovelace", Email: "ada@clinic.test", Role: model.RoleDoctor}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty", Filter{}, true},
		{"role", Filter{Role: model.RoleDoctor}, true},
		{"other role", Filter{Role: model.RolePatient}, false},
		{"search name case-insensitive", Filter{Search: "LOVE"}, true},
		{"search email", Filter{Search: "clinic.test"}, true},
		{"search miss", Filter{Search: "grace"}, false},
		{"appointment field", Filter{Doctor: "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(u); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMatchesAppointments(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	a := model.Appointment{ID: "a", Doctor: "d", Patient: "p", Status: model.StatusConfirmed, AppointmentDate: date}

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"doctor", Filter{Doctor: "d"}, true},
		{"wrong doctor", Filter{Doctor: "x"}, false},
		{"patient", Filter{Patient: "p"}, true},
		{"status in", Filter{Statuses: []model.Status{model.StatusPending, model.StatusConfirmed}}, true},
		{"status out", Filter{Statuses: []model.Status{model.StatusPending}}, false},
		{"from same instant", Filter{From: date}, true},
		{"from later", Filter{From: date.Add(time.Second)}, false},
		{"role never matches", Filter{Role: model.RoleAdmin}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Matches(a); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMatchesAnalysesAndReports(t *testing.T) {
	an := model.Analysis{ID: "1", Doctor: "d", Patient: "p"}
	r := model.Report{ID: "1", Patient: "p"}

	if !(Filter{Doctor: "d"}).Matches(an) {
		t.Error("analysis by doctor")
	}
	if (Filter{Patient: "q"}).Matches(an) {
		t.Error("analysis for other patient")
	}
	if !(Filter{Patient: "p"}).Matches(r) {
		t.Error("report by patient")
	}
	if (Filter{Statuses: []model.Status{model.StatusPending}}).Matches(r) {
		t.Error("status filter on report")
	}
	if (Filter{}).Matches("not a document") {
		t.Error("unknown type matched")
	}
}
