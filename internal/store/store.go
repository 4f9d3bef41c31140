// Package store defines the collection contracts every persistence backend
// implements, plus the filter language they all understand.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-management-api/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// fields accepted by Counter.Distinct
const (
	FieldDoctor  = "doctor"
	FieldPatient = "patient"
)

// Filter is the small query language shared by all backends. Zero fields
// are ignored, so Filter{} matches everything.
type Filter struct {
	Role     model.Role
	Doctor   string
	Patient  string
	Statuses []model.Status
	From     time.Time // appointmentDate on or after
	Search   string    // case-insensitive substring of name or email
	Email    string    // exact match; emails are stored lowercased
}

func (f Filter) hasStatus(s model.Status) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, want := range f.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

func (f Filter) matchSearch(vals ...string) bool {
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	for _, v := range vals {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// Matches evaluates the filter in memory. Enumerating backends use it to
// answer Find; fields that do not apply to a document type never match.
func (f Filter) Matches(doc any) bool {
	switch d := doc.(type) {
	case model.User:
		if f.Doctor != "" || f.Patient != "" || len(f.Statuses) > 0 || !f.From.IsZero() {
			return false
		}
		if f.Email != "" && d.Email != f.Email {
			return false
		}
		return (f.Role == "" || d.Role == f.Role) && f.matchSearch(d.Name, d.Email)
	case model.Appointment:
		if f.Role != "" || f.Search != "" || f.Email != "" {
			return false
		}
		if f.Doctor != "" && d.Doctor != f.Doctor {
			return false
		}
		if f.Patient != "" && d.Patient != f.Patient {
			return false
		}
		if !f.From.IsZero() && d.AppointmentDate.Before(f.From) {
			return false
		}
		return f.hasStatus(d.Status)
	case model.Analysis:
		if f.Role != "" || f.Search != "" || f.Email != "" || len(f.Statuses) > 0 || !f.From.IsZero() {
			return false
		}
		return (f.Doctor == "" || d.Doctor == f.Doctor) && (f.Patient == "" || d.Patient == f.Patient)
	case model.Report:
		if f.Role != "" || f.Search != "" || f.Email != "" || len(f.Statuses) > 0 || !f.From.IsZero() {
			return false
		}
		return (f.Doctor == "" || d.Doctor == f.Doctor) && (f.Patient == "" || d.Patient == f.Patient)
	}
	return false
}

type Document interface {
	Key() string
}

type Finder[T any] interface {
	Find(ctx context.Context, f Filter) ([]T, error)
}

type Collection[T Document] interface {
	Finder[T]
	Get(ctx context.Context, id string) (T, error)
	Insert(ctx context.Context, doc T) error
	Replace(ctx context.Context, doc T) error
	Delete(ctx context.Context, id string) error
}

// Counter is the server-side counting capability. Only backends that can
// count without loading documents provide it.
type Counter interface {
	CountDocuments(ctx context.Context, f Filter) (int64, error)
	Distinct(ctx context.Context, field string, f Filter) ([]string, error)
}

type Counters struct {
	Users        Counter
	Appointments Counter
	Analyses     Counter
	Reports      Counter
}

// Backend bundles the four collections of one persistence engine.
// Counters is nil for enumerate-only engines.
type Backend struct {
	Name         string
	Users        Collection[model.User]
	Appointments Collection[model.Appointment]
	Analyses     Collection[model.Analysis]
	Reports      Collection[model.Report]
	Counters     *Counters

	closer func(context.Context) error
}

func (b *Backend) OnClose(fn func(context.Context) error) { b.closer = fn }

func (b *Backend) Close(ctx context.Context) error {
	if b.closer == nil {
		return nil
	}
	return b.closer(ctx)
}

func ValidField(field string) bool {
	return field == FieldDoctor || field == FieldPatient
}
