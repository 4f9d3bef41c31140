// Package stats computes the role-scoped dashboard numbers and health
// trends, caching the admin view in a single TTL slot.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/store"
)

type TrendPoint struct {
	Date           time.Time `json:"date"`
	Severity       string    `json:"severity"`
	Confidence     float64   `json:"confidence"`
	Accuracy       *float64  `json:"accuracy"`
	DiagnosisCount int       `json:"diagnosisCount"`
}

type Aggregator struct {
	store Store
	cache *Cache
	clock clockwork.Clock
	log   zerolog.Logger
}

type Option func(*Aggregator)

// WithNow sets the clock used to decide what "today" is.
func WithNow(clock clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

func NewAggregator(st Store, cache *Cache, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: st,
		cache: cache,
		clock: clockwork.NewRealClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compute returns the dashboard numbers for the caller's role. Store errors
// are returned unchanged; a failed computation never reaches the cache.
func (a *Aggregator) Compute(ctx context.Context, id Identity) (Stats, error) {
	switch s := ScopeOf(id).(type) {
	case AdminScope:
		return a.adminStats(ctx)
	case DoctorScope:
		st, err := a.store.doctor(ctx, s.DoctorID)
		if err != nil {
			return nil, err
		}
		return st, nil
	case PatientScope:
		st, err := a.store.patient(ctx, s.PatientID, model.Day(a.clock.Now()))
		if err != nil {
			return nil, err
		}
		return st, nil
	case OtherScope:
		return EmptyStats{}, nil
	default:
		return EmptyStats{}, nil
	}
}

func (a *Aggregator) adminStats(ctx context.Context) (Stats, error) {
	if cached, ok := a.cache.Get(); ok {
		return cached, nil
	}
	a.log.Debug().Msg("admin stats cache miss")

	st, err := a.store.admin(ctx)
	if err != nil {
		return nil, err
	}
	a.cache.Put(st)
	return st, nil
}

// HealthTrends lists the caller's analyses oldest first. Admins see every
// analysis; any other caller sees the analyses recorded for them as the
// patient, doctors included.
func (a *Aggregator) HealthTrends(ctx context.Context, id Identity) ([]TrendPoint, error) {
	var f store.Filter
	switch s := ScopeOf(id).(type) {
	case AdminScope:
	case DoctorScope:
		f.Patient = s.DoctorID
	case PatientScope:
		f.Patient = s.PatientID
	case OtherScope:
		if id.ID == "" {
			return []TrendPoint{}, nil
		}
		f.Patient = id.ID
	}

	analyses, err := a.store.analyses(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.Before(analyses[j].CreatedAt)
	})

	out := make([]TrendPoint, len(analyses))
	for i, an := range analyses {
		out[i] = trendPoint(an)
	}
	return out, nil
}

func trendPoint(an model.Analysis) TrendPoint {
	p := TrendPoint{Date: an.CreatedAt, Severity: "low", Accuracy: an.Accuracy}
	if r := an.AIResponse; r != nil {
		if r.Severity != "" {
			p.Severity = r.Severity
		}
		p.Confidence = r.Confidence
		p.DiagnosisCount = len(r.PossibleDiagnosis)
	}
	return p
}
