package clinic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
	"clinic-management-api/internal/store"
)

// bookable hours, [9:00, 17:00)
const (
	openHour  = 9
	closeHour = 17
)

const minReasonLen = 10

type BookInput struct {
	Doctor          string
	Patient         string // admin only; patients book for themselves
	AppointmentDate time.Time
	TimeSlot        string // "HH:MM"
	Reason          string
	Notes           string
}

func parseSlot(slot string) (float64, error) {
	h, m, ok := strings.Cut(slot, ":")
	if !ok {
		return 0, errors.New("bad slot")
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, err
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, errors.New("bad minutes")
	}
	return float64(hh) + float64(mm)/60, nil
}

func (s *Service) validateBooking(in BookInput) error {
	var v ValidationError
	if in.Doctor == "" {
		v = append(v, "Doctor selection is required")
	}
	if in.AppointmentDate.IsZero() {
		v = append(v, "Date is required")
	} else if in.AppointmentDate.Before(model.Day(s.clock.Now())) {
		v = append(v, "Date must not be in the past")
	}
	if in.TimeSlot == "" {
		v = append(v, "Time is required")
	} else if h, err := parseSlot(in.TimeSlot); err != nil || h < openHour || h >= closeHour {
		v = append(v, fmt.Sprintf("Time must be during business hours (%d AM - %d PM)", openHour, closeHour-12))
	}
	if r := strings.TrimSpace(in.Reason); r == "" {
		v = append(v, "Reason is required")
	} else if len(r) < minReasonLen {
		v = append(v, fmt.Sprintf("Reason must be at least %d characters", minReasonLen))
	}
	return v.orNil()
}

// BookAppointment creates a pending appointment with a doctor.
func (s *Service) BookAppointment(ctx context.Context, caller stats.Identity, in BookInput) (model.Appointment, error) {
	switch caller.Role {
	case model.RolePatient:
		in.Patient = caller.ID
	case model.RoleAdmin:
		if in.Patient == "" {
			return model.Appointment{}, ValidationError{"Patient is required"}
		}
	default:
		return model.Appointment{}, ErrForbidden
	}
	if !in.AppointmentDate.IsZero() {
		in.AppointmentDate = model.Day(in.AppointmentDate)
	}
	if err := s.validateBooking(in); err != nil {
		return model.Appointment{}, err
	}

	doc, err := s.db.Users.Get(ctx, in.Doctor)
	if errors.Is(err, store.ErrNotFound) || (err == nil && doc.Role != model.RoleDoctor) {
		return model.Appointment{}, ValidationError{"Doctor not found"}
	}
	if err != nil {
		return model.Appointment{}, err
	}

	now := s.clock.Now()
	a := model.Appointment{
		ID:              uuid.New().String(),
		Doctor:          in.Doctor,
		Patient:         in.Patient,
		Status:          model.StatusPending,
		AppointmentDate: in.AppointmentDate,
		TimeSlot:        in.TimeSlot,
		Reason:          strings.TrimSpace(in.Reason),
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.Appointments.Insert(ctx, a); err != nil {
		return model.Appointment{}, err
	}
	s.invalidate("appointment booked")
	return a, nil
}

// ownerFilter restricts non-admins to their own documents.
func ownerFilter(caller stats.Identity) (store.Filter, error) {
	switch caller.Role {
	case model.RoleAdmin:
		return store.Filter{}, nil
	case model.RoleDoctor:
		return store.Filter{Doctor: caller.ID}, nil
	case model.RolePatient:
		return store.Filter{Patient: caller.ID}, nil
	}
	return store.Filter{}, ErrForbidden
}

// ListAppointments returns the caller's appointments, latest date first.
// An empty status lists every status.
func (s *Service) ListAppointments(ctx context.Context, caller stats.Identity, status model.Status) ([]model.Appointment, error) {
	f, err := ownerFilter(caller)
	if err != nil {
		return nil, err
	}
	if status != "" {
		if !status.Valid() {
			return nil, ValidationError{fmt.Sprintf("%q is not a valid status", status)}
		}
		f.Statuses = []model.Status{status}
	}
	appts, err := s.db.Appointments.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return newestFirst(appts, func(a model.Appointment) int64 { return a.AppointmentDate.UnixNano() }), nil
}

func (s *Service) ownedAppointment(ctx context.Context, caller stats.Identity, id string) (model.Appointment, error) {
	a, err := s.db.Appointments.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	switch {
	case caller.Role == model.RoleAdmin:
	case caller.Role == model.RoleDoctor && a.Doctor == caller.ID:
	case caller.Role == model.RolePatient && a.Patient == caller.ID:
	default:
		// hide existence from strangers
		return model.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

// UpdateAppointmentStatus moves an appointment to status. Patients may
// only cancel; finished appointments cannot change.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, caller stats.Identity, id string, status model.Status, notes string) (model.Appointment, error) {
	if !status.Valid() {
		return model.Appointment{}, ValidationError{fmt.Sprintf("%q is not a valid status", status)}
	}
	a, err := s.ownedAppointment(ctx, caller, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if caller.Role == model.RolePatient && status != model.StatusCancelled {
		return model.Appointment{}, ErrForbidden
	}
	if a.Status == model.StatusCancelled || a.Status == model.StatusCompleted {
		return model.Appointment{}, ValidationError{fmt.Sprintf("Appointment is already %s", a.Status)}
	}

	a.Status = status
	if notes != "" {
		a.Notes = notes
	}
	a.UpdatedAt = s.clock.Now()
	if err := s.db.Appointments.Replace(ctx, a); err != nil {
		return model.Appointment{}, err
	}
	s.invalidate("appointment status changed")
	return a, nil
}

func (s *Service) CancelAppointment(ctx context.Context, caller stats.Identity, id string) (model.Appointment, error) {
	return s.UpdateAppointmentStatus(ctx, caller, id, model.StatusCancelled, "")
}
