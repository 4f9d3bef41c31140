package stats

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

// Store is the counting strategy the aggregator runs on. It is sealed:
// ExactCountStore and EnumerateOnlyStore are the only implementations.
type Store interface {
	admin(ctx context.Context) (AdminStats, error)
	doctor(ctx context.Context, doctorID string) (DoctorStats, error)
	patient(ctx context.Context, patientID string, today time.Time) (PatientStats, error)
	analyses(ctx context.Context, f store.Filter) ([]model.Analysis, error)
}

// NewStore picks the strategy once, from what the backend can do.
func NewStore(b *store.Backend) Store {
	if b.Counters != nil {
		return NewExactCountStore(*b.Counters, b.Analyses)
	}
	return NewEnumerateOnlyStore(b.Users, b.Appointments, b.Analyses, b.Reports)
}

// ExactCountStore issues one server-side count per metric. Counts for one
// role run concurrently and are all awaited before the result is built.
type ExactCountStore struct {
	counters store.Counters
	finder   store.Finder[model.Analysis]
}

func NewExactCountStore(c store.Counters, analyses store.Finder[model.Analysis]) *ExactCountStore {
	return &ExactCountStore{counters: c, finder: analyses}
}

type countGroup struct {
	g   *errgroup.Group
	ctx context.Context
}

func newCountGroup(ctx context.Context) *countGroup {
	g, ctx := errgroup.WithContext(ctx)
	return &countGroup{g: g, ctx: ctx}
}

func (cg *countGroup) count(dst *int64, c store.Counter, f store.Filter) {
	cg.g.Go(func() error {
		n, err := c.CountDocuments(cg.ctx, f)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	})
}

func (cg *countGroup) distinct(dst *int64, c store.Counter, field string, f store.Filter) {
	cg.g.Go(func() error {
		vals, err := c.Distinct(cg.ctx, field, f)
		if err != nil {
			return err
		}
		*dst = int64(len(vals))
		return nil
	})
}

func (s *ExactCountStore) admin(ctx context.Context) (AdminStats, error) {
	var st AdminStats
	cg := newCountGroup(ctx)
	cg.count(&st.TotalUsers, s.counters.Users, store.Filter{})
	cg.count(&st.TotalPatients, s.counters.Users, store.Filter{Role: model.RolePatient})
	cg.count(&st.TotalDoctors, s.counters.Users, store.Filter{Role: model.RoleDoctor})
	cg.count(&st.TotalAppointments, s.counters.Appointments, store.Filter{})
	cg.count(&st.TotalAnalyses, s.counters.Analyses, store.Filter{})
	cg.count(&st.PendingAppointments, s.counters.Appointments,
		store.Filter{Statuses: []model.Status{model.StatusPending}})
	if err := cg.g.Wait(); err != nil {
		return AdminStats{}, err
	}
	return st, nil
}

func (s *ExactCountStore) doctor(ctx context.Context, id string) (DoctorStats, error) {
	var st DoctorStats
	mine := store.Filter{Doctor: id}
	cg := newCountGroup(ctx)
	cg.count(&st.MyAppointments, s.counters.Appointments, mine)
	cg.count(&st.PendingAppointments, s.counters.Appointments,
		store.Filter{Doctor: id, Statuses: []model.Status{model.StatusPending}})
	cg.count(&st.CompletedAppointments, s.counters.Appointments,
		store.Filter{Doctor: id, Statuses: []model.Status{model.StatusCompleted}})
	cg.count(&st.MyAnalyses, s.counters.Analyses, mine)
	cg.distinct(&st.TotalPatients, s.counters.Appointments, store.FieldPatient, mine)
	if err := cg.g.Wait(); err != nil {
		return DoctorStats{}, err
	}
	return st, nil
}

func (s *ExactCountStore) patient(ctx context.Context, id string, today time.Time) (PatientStats, error) {
	var st PatientStats
	mine := store.Filter{Patient: id}
	cg := newCountGroup(ctx)
	cg.count(&st.MyAppointments, s.counters.Appointments, mine)
	cg.count(&st.UpcomingAppointments, s.counters.Appointments, store.Filter{
		Patient:  id,
		Statuses: []model.Status{model.StatusPending, model.StatusConfirmed},
		From:     today,
	})
	cg.count(&st.MyReports, s.counters.Reports, mine)
	cg.count(&st.MyAnalyses, s.counters.Analyses, mine)
	if err := cg.g.Wait(); err != nil {
		return PatientStats{}, err
	}
	return st, nil
}

func (s *ExactCountStore) analyses(ctx context.Context, f store.Filter) ([]model.Analysis, error) {
	return s.finder.Find(ctx, f)
}

// EnumerateOnlyStore loads each needed collection once per computation and
// derives every metric from that single result set.
type EnumerateOnlyStore struct {
	users    store.Finder[model.User]
	appts    store.Finder[model.Appointment]
	analysis store.Finder[model.Analysis]
	reports  store.Finder[model.Report]
}

func NewEnumerateOnlyStore(
	users store.Finder[model.User],
	appts store.Finder[model.Appointment],
	analyses store.Finder[model.Analysis],
	reports store.Finder[model.Report],
) *EnumerateOnlyStore {
	return &EnumerateOnlyStore{users: users, appts: appts, analysis: analyses, reports: reports}
}

func countWhere[T any](docs []T, keep func(T) bool) int64 {
	var n int64
	for _, d := range docs {
		if keep(d) {
			n++
		}
	}
	return n
}

func (s *EnumerateOnlyStore) admin(ctx context.Context) (AdminStats, error) {
	users, err := s.users.Find(ctx, store.Filter{})
	if err != nil {
		return AdminStats{}, err
	}
	appts, err := s.appts.Find(ctx, store.Filter{})
	if err != nil {
		return AdminStats{}, err
	}
	analyses, err := s.analysis.Find(ctx, store.Filter{})
	if err != nil {
		return AdminStats{}, err
	}

	return AdminStats{
		TotalUsers:          int64(len(users)),
		TotalPatients:       countWhere(users, func(u model.User) bool { return u.Role == model.RolePatient }),
		TotalDoctors:        countWhere(users, func(u model.User) bool { return u.Role == model.RoleDoctor }),
		TotalAppointments:   int64(len(appts)),
		TotalAnalyses:       int64(len(analyses)),
		PendingAppointments: countWhere(appts, func(a model.Appointment) bool { return a.Status == model.StatusPending }),
	}, nil
}

func (s *EnumerateOnlyStore) doctor(ctx context.Context, id string) (DoctorStats, error) {
	appts, err := s.appts.Find(ctx, store.Filter{Doctor: id})
	if err != nil {
		return DoctorStats{}, err
	}
	analyses, err := s.analysis.Find(ctx, store.Filter{Doctor: id})
	if err != nil {
		return DoctorStats{}, err
	}

	patients := make(map[string]struct{})
	for _, a := range appts {
		if a.Patient != "" {
			patients[a.Patient] = struct{}{}
		}
	}

	return DoctorStats{
		MyAppointments:        int64(len(appts)),
		PendingAppointments:   countWhere(appts, func(a model.Appointment) bool { return a.Status == model.StatusPending }),
		CompletedAppointments: countWhere(appts, func(a model.Appointment) bool { return a.Status == model.StatusCompleted }),
		MyAnalyses:            int64(len(analyses)),
		TotalPatients:         int64(len(patients)),
	}, nil
}

func (s *EnumerateOnlyStore) patient(ctx context.Context, id string, today time.Time) (PatientStats, error) {
	mine := store.Filter{Patient: id}
	appts, err := s.appts.Find(ctx, mine)
	if err != nil {
		return PatientStats{}, err
	}
	reports, err := s.reports.Find(ctx, mine)
	if err != nil {
		return PatientStats{}, err
	}
	analyses, err := s.analysis.Find(ctx, mine)
	if err != nil {
		return PatientStats{}, err
	}

	return PatientStats{
		MyAppointments:       int64(len(appts)),
		UpcomingAppointments: countWhere(appts, func(a model.Appointment) bool { return upcoming(a, today) }),
		MyReports:            int64(len(reports)),
		MyAnalyses:           int64(len(analyses)),
	}, nil
}

func (s *EnumerateOnlyStore) analyses(ctx context.Context, f store.Filter) ([]model.Analysis, error) {
	return s.analysis.Find(ctx, f)
}

func upcoming(a model.Appointment, today time.Time) bool {
	if a.Status != model.StatusPending && a.Status != model.StatusConfirmed {
		return false
	}
	return !a.AppointmentDate.Before(today)
}
