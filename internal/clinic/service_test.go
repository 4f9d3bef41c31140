package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"clinic-management-api/internal/auth"
	"clinic-management-api/internal/model"
	"clinic-management-api/internal/stats"
	"clinic-management-api/internal/store"
	"clinic-management-api/internal/store/memory"
)

const secret = "test-secret"

type countingInvalidator struct{ n int32 }

func (c *countingInvalidator) Invalidate()  { atomic.AddInt32(&c.n, 1) }
func (c *countingInvalidator) Count() int32 { return atomic.LoadInt32(&c.n) }

var now = time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *countingInvalidator, *clockwork.FakeClock) {
	t.Helper()
	inv := &countingInvalidator{}
	clk := clockwork.NewFakeClockAt(now)
	return New(memory.New(), inv, secret, WithClock(clk)), inv, clk
}

func register(t *testing.T, s *Service, name, email string, role model.Role) model.User {
	t.Helper()
	sess, err := s.Register(context.Background(), RegisterInput{
		Name: name, Email: email, Password: "password123", Role: role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return sess.User
}

func TestRegister(t *testing.T) {
	s, inv, _ := newService(t)

	sess, err := s.Register(context.Background(), RegisterInput{
		Name: "Ada", Email: "  Ada@Example.com ", Password: "password123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.User.Role != model.RolePatient {
		t.Errorf("default role = %q", sess.User.Role)
	}
	if sess.User.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", sess.User.Email)
	}
	if sess.User.PasswordHash != "" {
		t.Error("hash leaked")
	}
	claims, err := auth.ParseToken(sess.Token, secret)
	if err != nil || claims.UserID != sess.User.ID || claims.Role != model.RolePatient {
		t.Fatalf("token claims = %+v, %v", claims, err)
	}
	if inv.Count() != 1 {
		t.Errorf("invalidations = %d", inv.Count())
	}
}

func TestRegisterValidation(t *testing.T) {
	s, inv, _ := newService(t)

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"empty name", RegisterInput{Email: "a@b.test", Password: "password123"}},
		{"bad email", RegisterInput{Name: "A", Email: "nope", Password: "password123"}},
		{"short password", RegisterInput{Name: "A", Email: "a@b.test", Password: "short"}},
		{"admin role", RegisterInput{Name: "A", Email: "a@b.test", Password: "password123", Role: model.RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.in)
			var v ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if inv.Count() != 0 {
		t.Errorf("failed registrations invalidated %d times", inv.Count())
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _, _ := newService(t)
	register(t, s, "A", "dup@example.com", model.RolePatient)

	_, err := s.Register(context.Background(), RegisterInput{
		Name: "B", Email: "DUP@example.com", Password: "password123",
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	s, _, _ := newService(t)
	u := register(t, s, "Doc", "doc@example.com", model.RoleDoctor)

	sess, err := s.Login(context.Background(), "Doc@Example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.User.ID != u.ID || sess.Token == "" {
		t.Errorf("session = %+v", sess)
	}

	if _, err := s.Login(context.Background(), "doc@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := s.Login(context.Background(), "ghost@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}
}

func TestLoginInactive(t *testing.T) {
	s, _, _ := newService(t)
	u := register(t, s, "P", "p@example.com", model.RolePatient)
	if _, err := s.UpdateUser(context.Background(), u.ID, map[string]json.RawMessage{"isActive": json.RawMessage("false")}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.Login(context.Background(), "p@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive login: %v", err)
	}
}

func TestCreateAdmin(t *testing.T) {
	s, _, _ := newService(t)
	u, err := s.CreateAdmin(context.Background(), "Root", "root@example.com", "password123")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if u.Role != model.RoleAdmin || u.PasswordHash != "" {
		t.Errorf("admin = %+v", u)
	}
}

func TestListUsers(t *testing.T) {
	s, _, clk := newService(t)
	register(t, s, "Alice", "alice@example.com", model.RolePatient)
	clk.Advance(time.Minute)
	register(t, s, "Bob", "bob@example.com", model.RoleDoctor)
	clk.Advance(time.Minute)
	register(t, s, "Carol", "carol@example.com", model.RolePatient)

	all, err := s.ListUsers(context.Background(), "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Carol" || all[2].Name != "Alice" {
		t.Fatalf("order = %v", names(all))
	}
	for _, u := range all {
		if u.PasswordHash != "" {
			t.Errorf("%s: hash leaked", u.Name)
		}
	}

	patients, _ := s.ListUsers(context.Background(), model.RolePatient, "")
	if len(patients) != 2 {
		t.Errorf("patients = %v", names(patients))
	}
	found, _ := s.ListUsers(context.Background(), "", "BOB@")
	if len(found) != 1 || found[0].Name != "Bob" {
		t.Errorf("search = %v", names(found))
	}
}

func names(users []model.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Name
	}
	return out
}

func TestUpdateUser(t *testing.T) {
	s, inv, clk := newService(t)
	u := register(t, s, "P", "p@example.com", model.RolePatient)
	before := inv.Count()
	clk.Advance(time.Hour)

	got, err := s.UpdateUser(context.Background(), u.ID, map[string]json.RawMessage{
		"phone": json.RawMessage(`"555-0100"`),
		"role":  json.RawMessage(`"doctor"`),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Phone != "555-0100" || got.Role != model.RoleDoctor || got.Name != "P" {
		t.Errorf("updated = %+v", got)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("updatedAt = %v", got.UpdatedAt)
	}
	if inv.Count() != before+1 {
		t.Errorf("invalidations = %d", inv.Count()-before)
	}

	// password survives the overlay
	if _, err := s.Login(context.Background(), "p@example.com", "password123"); err != nil {
		t.Errorf("login after update: %v", err)
	}
}

func TestUpdateUserRejects(t *testing.T) {
	s, _, _ := newService(t)
	u := register(t, s, "P", "p@example.com", model.RolePatient)

	tests := []struct {
		name   string
		fields map[string]json.RawMessage
	}{
		{"email not allowed", map[string]json.RawMessage{"email": json.RawMessage(`"x@y.z"`)}},
		{"password not allowed", map[string]json.RawMessage{"password": json.RawMessage(`"x"`)}},
		{"bad role", map[string]json.RawMessage{"role": json.RawMessage(`"nurse"`)}},
		{"wrong type", map[string]json.RawMessage{"isActive": json.RawMessage(`"yes"`)}},
		{"blank name", map[string]json.RawMessage{"name": json.RawMessage(`"  "`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateUser(context.Background(), u.ID, tt.fields)
			var v ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, err := s.UpdateUser(context.Background(), "missing", map[string]json.RawMessage{"name": json.RawMessage(`"x"`)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing user: %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	s, inv, _ := newService(t)
	admin, _ := s.CreateAdmin(context.Background(), "Root", "root@example.com", "password123")
	u := register(t, s, "P", "p@example.com", model.RolePatient)
	caller := stats.Identity{ID: admin.ID, Role: model.RoleAdmin}
	before := inv.Count()

	if err := s.DeleteUser(context.Background(), caller, admin.ID); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("self delete: %v", err)
	}
	if err := s.DeleteUser(context.Background(), caller, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteUser(context.Background(), caller, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if inv.Count() != before+1 {
		t.Errorf("invalidations = %d", inv.Count()-before)
	}
}
