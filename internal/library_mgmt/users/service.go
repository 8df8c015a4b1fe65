package users

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
	"ALMS-backend/internal/platform/notify"
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ New() (string, error) }

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type Service struct {
	store    *Store
	notifier notify.Dispatcher
	secret   []byte
	tokenTTL time.Duration
	clock    Clock
	id       IDGen
}

func NewService(db *sql.DB, notifier notify.Dispatcher, secret []byte, tokenTTL time.Duration) *Service {
	return &Service{
		store:    NewStore(db),
		notifier: notifier,
		secret:   secret,
		tokenTTL: tokenTTL,
		clock:    realClock{},
		id:       ulidGen{},
	}
}

// Register creates a PENDING_APPROVAL account with the USER role. A
// librarian or admin has to approve it before the account can log in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, apierr.ErrInvalid("email and password are required")
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierr.ErrConflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	u := &User{
		UserID:       id,
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		Role:         auth.RoleUser,
		Status:       StatusPendingApproval,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, u); err != nil {
		return nil, err
	}

	resp := toResponse(u)
	return &resp, nil
}

// Login verifies credentials and returns a signed token. Credential
// failures are indistinguishable on purpose; status failures are not,
// so a pending user learns why they cannot get in.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrUnauthorized("authentication failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apierr.ErrUnauthorized("authentication failed")
	}
	if u.Status != StatusActive {
		return nil, apierr.ErrForbidden("account is " + u.Status)
	}

	token, err := auth.SignToken(s.secret, u.UserID, u.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, User: toResponse(u)}, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, userID string) (*UserResponse, error) {
	if !auth.CanViewUser(actor, userID) {
		return nil, apierr.ErrForbidden("cannot view another user's account")
	}
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apierr.ErrNotFound("user not found")
	}
	resp := toResponse(u)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, f Filter) (*ListResponse, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	resp := &ListResponse{Users: make([]UserResponse, 0, len(list)), Total: total}
	for i := range list {
		resp.Users = append(resp.Users, toResponse(&list[i]))
	}
	return resp, nil
}

// UpdateStatus covers approval, suspension and reactivation.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Actor, userID, status string) (*UserResponse, error) {
	if !ValidStatus(status) {
		return nil, apierr.ErrInvalid("unknown status: " + status)
	}

	target, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apierr.ErrNotFound("user not found")
	}
	if !auth.CanManageUser(actor.Role, target.Role) {
		return nil, apierr.ErrForbidden("insufficient privileges for this account")
	}

	if _, err := s.store.UpdateStatus(ctx, userID, status, s.clock.Now()); err != nil {
		return nil, err
	}
	target.Status = status

	s.notifier.Dispatch(ctx, userID, notify.TypeAccountStatus, "your account is now "+status)

	resp := toResponse(target)
	return &resp, nil
}

func (s *Service) UpdateRole(ctx context.Context, actor auth.Actor, userID, role string) (*UserResponse, error) {
	if !auth.ValidRole(role) {
		return nil, apierr.ErrInvalid("unknown role: " + role)
	}

	target, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apierr.ErrNotFound("user not found")
	}
	if !auth.CanAssignRole(actor.Role, target.Role, role) {
		return nil, apierr.ErrForbidden("insufficient privileges to assign this role")
	}

	if _, err := s.store.UpdateRole(ctx, userID, role, s.clock.Now()); err != nil {
		return nil, err
	}
	target.Role = role

	resp := toResponse(target)
	return &resp, nil
}

// Deactivate is the soft delete: the account flips to INACTIVE and
// stays in the table for audit and historic loans.
func (s *Service) Deactivate(ctx context.Context, actor auth.Actor, userID string) error {
	target, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if target == nil {
		return apierr.ErrNotFound("user not found")
	}
	if !auth.CanManageUser(actor.Role, target.Role) {
		return apierr.ErrForbidden("insufficient privileges for this account")
	}
	_, err = s.store.UpdateStatus(ctx, userID, StatusInactive, s.clock.Now())
	return err
}
