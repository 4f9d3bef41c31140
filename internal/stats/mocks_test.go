package stats

import (
	"context"
	"sync/atomic"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

var (
	_ store.Finder[model.User]        = (*mockFinder[model.User])(nil)
	_ store.Counter                   = (*mockCounter[model.Appointment])(nil)
	_ store.Finder[model.Appointment] = (*mockFinder[model.Appointment])(nil)
)

// mockFinder answers Find from a fixed slice and counts calls.
type mockFinder[T any] struct {
	docs  []T
	err   error
	calls int32
}

func (m *mockFinder[T]) Find(_ context.Context, f store.Filter) ([]T, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return nil, m.err
	}
	var out []T
	for _, d := range m.docs {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockFinder[T]) Calls() int32 { return atomic.LoadInt32(&m.calls) }

// mockCounter counts matches server-side style and records calls.
type mockCounter[T any] struct {
	docs      []T
	err       error
	counts    int32
	distincts int32
}

func (m *mockCounter[T]) CountDocuments(_ context.Context, f store.Filter) (int64, error) {
	atomic.AddInt32(&m.counts, 1)
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, d := range m.docs {
		if f.Matches(d) {
			n++
		}
	}
	return n, nil
}

func (m *mockCounter[T]) Distinct(_ context.Context, field string, f store.Filter) ([]string, error) {
	atomic.AddInt32(&m.distincts, 1)
	if m.err != nil {
		return nil, m.err
	}
	seen := map[string]bool{}
	var out []string
	for _, d := range m.docs {
		if !f.Matches(d) {
			continue
		}
		v := fieldOf(d, field)
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockCounter[T]) Calls() int32 {
	return atomic.LoadInt32(&m.counts) + atomic.LoadInt32(&m.distincts)
}

func fieldOf(d any, field string) string {
	switch v := d.(type) {
	case model.Appointment:
		if field == store.FieldPatient {
			return v.Patient
		}
		return v.Doctor
	case model.Analysis:
		if field == store.FieldPatient {
			return v.Patient
		}
		return v.Doctor
	}
	return ""
}

// fixture holds the same data behind both strategies.
type fixture struct {
	users    []model.User
	appts    []model.Appointment
	analyses []model.Analysis
	reports  []model.Report
}

type enumMocks struct {
	users    *mockFinder[model.User]
	appts    *mockFinder[model.Appointment]
	analyses *mockFinder[model.Analysis]
	reports  *mockFinder[model.Report]
}

func (fx fixture) enumerate() (*EnumerateOnlyStore, *enumMocks) {
	m := &enumMocks{
		users:    &mockFinder[model.User]{docs: fx.users},
		appts:    &mockFinder[model.Appointment]{docs: fx.appts},
		analyses: &mockFinder[model.Analysis]{docs: fx.analyses},
		reports:  &mockFinder[model.Report]{docs: fx.reports},
	}
	return NewEnumerateOnlyStore(m.users, m.appts, m.analyses, m.reports), m
}

type exactMocks struct {
	users    *mockCounter[model.User]
	appts    *mockCounter[model.Appointment]
	analyses *mockCounter[model.Analysis]
	reports  *mockCounter[model.Report]
	finder   *mockFinder[model.Analysis]
}

func (fx fixture) exact() (*ExactCountStore, *exactMocks) {
	m := &exactMocks{
		users:    &mockCounter[model.User]{docs: fx.users},
		appts:    &mockCounter[model.Appointment]{docs: fx.appts},
		analyses: &mockCounter[model.Analysis]{docs: fx.analyses},
		reports:  &mockCounter[model.Report]{docs: fx.reports},
		finder:   &mockFinder[model.Analysis]{docs: fx.analyses},
	}
	c := store.Counters{Users: m.users, Appointments: m.appts, Analyses: m.analyses, Reports: m.reports}
	return NewExactCountStore(c, m.finder), m
}
