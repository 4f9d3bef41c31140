package clinic

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
)

type AnalysisInput struct {
	Patient    string            `json:"patient"`
	Symptoms   string            `json:"symptoms"`
	AIResponse *model.AIResponse `json:"aiResponse"`
	Accuracy   *float64          `json:"accuracy"`
}

// CreateAnalysis records a symptom analysis. Patients record their own,
// doctors and admins name the patient.
func (s *Service) CreateAnalysis(ctx context.Context, caller stats.Identity, in AnalysisInput) (model.Analysis, error) {
	a := model.Analysis{
		ID:         uuid.New().String(),
		Symptoms:   strings.TrimSpace(in.Symptoms),
		AIResponse: in.AIResponse,
		Accuracy:   in.Accuracy,
		CreatedAt:  s.clock.Now(),
	}
	switch caller.Role {
	case model.RolePatient:
		a.Patient = caller.ID
	case model.RoleDoctor:
		a.Doctor, a.Patient = caller.ID, in.Patient
	case model.RoleAdmin:
		a.Patient = in.Patient
	default:
		return model.Analysis{}, ErrForbidden
	}

	var v ValidationError
	if a.Patient == "" {
		v = append(v, "Patient is required")
	}
	if a.Symptoms == "" {
		v = append(v, "Symptoms are required")
	}
	if err := v.orNil(); err != nil {
		return model.Analysis{}, err
	}

	if err := s.db.Analyses.Insert(ctx, a); err != nil {
		return model.Analysis{}, err
	}
	s.invalidate("analysis created")
	return a, nil
}

func (s *Service) ListAnalyses(ctx context.Context, caller stats.Identity) ([]model.Analysis, error) {
	f, err := ownerFilter(caller)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Analyses.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return newestFirst(out, func(a model.Analysis) int64 { return a.CreatedAt.UnixNano() }), nil
}

type ReportInput struct {
	Patient     string `json:"patient"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateReport files a report for a patient. Reports are not part of the
// admin dashboard, so the stats cache is left alone.
func (s *Service) CreateReport(ctx context.Context, caller stats.Identity, in ReportInput) (model.Report, error) {
	if caller.Role != model.RoleDoctor && caller.Role != model.RoleAdmin {
		return model.Report{}, ErrForbidden
	}
	var v ValidationError
	if in.Patient == "" {
		v = append(v, "Patient is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		v = append(v, "Title is required")
	}
	if err := v.orNil(); err != nil {
		return model.Report{}, err
	}

	r := model.Report{
		ID:          uuid.New().String(),
		Patient:     in.Patient,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CreatedAt:   s.clock.Now(),
	}
	if caller.Role == model.RoleDoctor {
		r.Doctor = caller.ID
	}
	if err := s.db.Reports.Insert(ctx, r); err != nil {
		return model.Report{}, err
	}
	return r, nil
}

func (s *Service) ListReports(ctx context.Context, caller stats.Identity) ([]model.Report, error) {
	f, err := ownerFilter(caller)
	if err != nil {
		return nil, err
	}
	out, err := s.db.Reports.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return newestFirst(out, func(r model.Report) int64 { return r.CreatedAt.UnixNano() }), nil
}
