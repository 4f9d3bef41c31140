package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"clinic-management-api/internal/auth"
	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
	"clinic-management-api/internal/store"
)

const minPasswordLen = 8

type RegisterInput struct {
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Password         string     `json:"password"`
	Role             model.Role `json:"role"`
	Phone            string     `json:"phone"`
	DateOfBirth      string     `json:"dateOfBirth"`
	Address          string     `json:"address"`
	Specialization   string     `json:"specialization"`
	LicenseNumber    string     `json:"licenseNumber"`
	BloodGroup       string     `json:"bloodGroup"`
	EmergencyContact string     `json:"emergencyContact"`
}

// Session is what a successful register or login hands back.
type Session struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (in RegisterInput) validate() error {
	var v ValidationError
	if strings.TrimSpace(in.Name) == "" {
		v = append(v, "Please provide a name")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		v = append(v, "Please provide a valid email")
	}
	if len(in.Password) < minPasswordLen {
		v = append(v, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if in.Role != "" && in.Role != model.RolePatient && in.Role != model.RoleDoctor {
		v = append(v, "Role must be patient or doctor")
	}
	return v.orNil()
}

// Register creates a patient or doctor account. Admins are created with
// CreateAdmin only.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if in.Role == "" {
		in.Role = model.RolePatient
	}
	u, err := s.createUser(ctx, in)
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// CreateAdmin bootstraps an administrator from the command line.
func (s *Service) CreateAdmin(ctx context.Context, name, email, password string) (model.User, error) {
	in := RegisterInput{Name: name, Email: email, Password: password}
	if err := in.validate(); err != nil {
		return model.User{}, err
	}
	in.Role = model.RoleAdmin
	u, err := s.createUser(ctx, in)
	return u.Public(), err
}

func (s *Service) createUser(ctx context.Context, in RegisterInput) (model.User, error) {
	email := normalizeEmail(in.Email)
	existing, err := s.db.Users.Find(ctx, store.Filter{Email: email})
	if err != nil {
		return model.User{}, err
	}
	if len(existing) > 0 {
		return model.User{}, store.ErrDuplicate
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}
	now := s.clock.Now()
	u := model.User{
		ID:               uuid.New().String(),
		Name:             strings.TrimSpace(in.Name),
		Email:            email,
		PasswordHash:     hash,
		Role:             in.Role,
		Phone:            in.Phone,
		DateOfBirth:      in.DateOfBirth,
		Address:          in.Address,
		Specialization:   in.Specialization,
		LicenseNumber:    in.LicenseNumber,
		BloodGroup:       in.BloodGroup,
		EmergencyContact: in.EmergencyContact,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// a concurrent register can still race past the lookup; the unique
	// email index reports it as ErrDuplicate
	if err := s.db.Users.Insert(ctx, u); err != nil {
		return model.User{}, err
	}
	s.invalidate("user created")
	s.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if email == "" || password == "" {
		return Session{}, ValidationError{"Please provide an email and password"}
	}
	users, err := s.db.Users.Find(ctx, store.Filter{Email: normalizeEmail(email)})
	if err != nil {
		return Session{}, err
	}
	if len(users) == 0 || !auth.CheckPassword(users[0].PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if !users[0].IsActive {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(users[0])
}

func (s *Service) session(u model.User) (Session, error) {
	tok, err := auth.MakeToken(u.ID, u.Role, s.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u.Public(), Token: tok}, nil
}

// ListUsers returns at most listLimit users, newest first, without hashes.
func (s *Service) ListUsers(ctx context.Context, role model.Role, search string) ([]model.User, error) {
	users, err := s.db.Users.Find(ctx, store.Filter{Role: role, Search: strings.TrimSpace(search)})
	if err != nil {
		return nil, err
	}
	users = newestFirst(users, func(u model.User) int64 { return u.CreatedAt.UnixNano() })
	out := make([]model.User, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := s.db.Users.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return u.Public(), nil
}

var updatable = map[string]bool{
	"name":             true,
	"phone":            true,
	"dateOfBirth":      true,
	"address":          true,
	"specialization":   true,
	"licenseNumber":    true,
	"bloodGroup":       true,
	"emergencyContact": true,
	"isActive":         true,
	"role":             true,
}

// UpdateUser applies a partial update. Any key outside the whitelist
// rejects the whole request.
func (s *Service) UpdateUser(ctx context.Context, id string, fields map[string]json.RawMessage) (model.User, error) {
	for k := range fields {
		if !updatable[k] {
			return model.User{}, ValidationError{"Invalid updates"}
		}
	}

	u, err := s.db.Users.Get(ctx, id)
	if err != nil {
		return model.User{}, err
	}

	// overlay the patch on the stored document
	raw, err := json.Marshal(u)
	if err != nil {
		return model.User{}, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.User{}, err
	}
	for k, v := range fields {
		doc[k] = v
	}
	if raw, err = json.Marshal(doc); err != nil {
		return model.User{}, err
	}
	var next model.User
	if err := json.Unmarshal(raw, &next); err != nil {
		return model.User{}, ValidationError{"Invalid updates"}
	}
	if !next.Role.Valid() {
		return model.User{}, ValidationError{fmt.Sprintf("%q is not a valid role", next.Role)}
	}
	if strings.TrimSpace(next.Name) == "" {
		return model.User{}, ValidationError{"Please provide a name"}
	}

	next.ID, next.Email, next.PasswordHash, next.CreatedAt = u.ID, u.Email, u.PasswordHash, u.CreatedAt
	next.UpdatedAt = s.clock.Now()
	if err := s.db.Users.Replace(ctx, next); err != nil {
		return model.User{}, err
	}
	s.invalidate("user updated")
	return next.Public(), nil
}

func (s *Service) DeleteUser(ctx context.Context, caller stats.Identity, id string) error {
	if id == caller.ID {
		return ErrSelfDelete
	}
	if err := s.db.Users.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate("user deleted")
	s.log.Info().Str("user_id", id).Str("by", caller.ID).Msg("user deleted")
	return nil
}
