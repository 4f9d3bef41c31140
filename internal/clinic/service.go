// Package clinic holds the write side of the dashboard: accounts,
// appointments, analyses and reports. Every mutation that changes an
// admin-visible count invalidates the stats cache before returning.
package clinic

import (
	"errors"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"clinic-management-api/internal/stats"
	"clinic-management-api/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfDelete         = errors.New("cannot delete your own account")
	ErrForbidden          = errors.New("not allowed")
)

// ValidationError lists every problem found with an input.
type ValidationError []string

func (v ValidationError) Error() string { return strings.Join(v, ", ") }

func (v ValidationError) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// max documents returned by list operations
const listLimit = 100

type Service struct {
	db     *store.Backend
	stats  stats.Invalidator
	secret string
	clock  clockwork.Clock
	log    zerolog.Logger
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(db *store.Backend, inv stats.Invalidator, secret string, opts ...Option) *Service {
	s := &Service{
		db:     db,
		stats:  inv,
		secret: secret,
		clock:  clockwork.NewRealClock(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) invalidate(reason string) {
	s.stats.Invalidate()
	s.log.Debug().Str("reason", reason).Msg("stats cache invalidated")
}

// newestFirst sorts docs by created descending and truncates to listLimit.
// The result is never nil.
func newestFirst[T any](docs []T, created func(T) int64) []T {
	if docs == nil {
		return []T{}
	}
	sort.SliceStable(docs, func(i, j int) bool { return created(docs[i]) > created(docs[j]) })
	if len(docs) > listLimit {
		docs = docs[:listLimit]
	}
	return docs
}
