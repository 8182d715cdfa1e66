package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantcore/internal/auth"
	"github.com/kiranshivaraju/tenantcore/internal/store"
	"github.com/kiranshivaraju/tenantcore/internal/tenancy"
	"github.com/kiranshivaraju/tenantcore/pkg/models"
)

// CreateUserRequest adds a user to a tenant.
type CreateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

func (r *CreateUserRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.TrimSpace(r.Role)
	if r.Role == "" {
		r.Role = models.RoleTenantUser
	}
}

func (r *CreateUserRequest) validate() error {
	var v validator
	v.required(r.FirstName, "first_name")
	v.maxLen(r.FirstName, maxPersonNameLen, "first_name")
	v.required(r.LastName, "last_name")
	v.maxLen(r.LastName, maxPersonNameLen, "last_name")
	v.email(r.Email, "email")
	v.password(r.Password, "password")
	v.check(models.ValidRole(r.Role), "role", "must be SuperAdmin, TenantAdmin or TenantUser")
	return v.err()
}

// UserService manages user accounts. Reads are confined to the caller's
// tenant by the store.
type UserService struct {
	store store.Store
}

func NewUserService(st store.Store) *UserService {
	return &UserService{store: st}
}

// Create adds a user to tenantID with one role and makes that tenant the
// user's default membership. Only super-admins may create SuperAdmin users,
// which belong to no tenant.
func (s *UserService) Create(ctx context.Context, tenantID uuid.UUID, req CreateUserRequest) (*models.User, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	superAdmin := req.Role == models.RoleSuperAdmin
	switch {
	case superAdmin && !tenancy.IsSuperAdmin(ctx):
		return nil, fmt.Errorf("create super-admin: %w", ErrForbidden)
	case !superAdmin && tenantID == uuid.Nil:
		return nil, invalid("tenant_id", "is required")
	case !superAdmin && !tenancy.IsTenantAdmin(ctx, tenantID):
		return nil, fmt.Errorf("create user: %w", ErrForbidden)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: hash,
		Roles:        []string{req.Role},
	}
	if !superAdmin {
		u.TenantID = &tenantID
	}

	err = s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateKey):
				return conflict("email", "is already registered")
			case errors.Is(err, store.ErrForeignKey):
				return fmt.Errorf("tenant: %w", ErrNotFound)
			}
			return translate(err, "user")
		}
		if superAdmin {
			return nil
		}
		return translate(tx.CreateMembership(ctx, &models.UserTenant{
			ID:        uuid.New(),
			UserID:    u.ID,
			TenantID:  tenantID,
			Role:      req.Role,
			IsActive:  true,
			IsDefault: true,
		}), "membership")
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user created", "user_id", u.ID, "tenant_id", u.TenantID, "role", req.Role)
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, translate(err, "user")
	}
	return u, nil
}

// List returns the non-deleted users whose home tenant is tenantID.
func (s *UserService) List(ctx context.Context, tenantID uuid.UUID) ([]*models.User, error) {
	users, err := s.store.ListUsers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Delete soft-deletes a user. Callers cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if p, ok := tenancy.PrincipalFrom(ctx); ok && p.Subject == id.String() {
		return invalid("id", "you cannot delete your own account")
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return translate(err, "user")
	}
	if u.TenantID != nil && !tenancy.IsTenantAdmin(ctx, *u.TenantID) {
		return fmt.Errorf("delete user: %w", ErrForbidden)
	}
	if err := s.store.SoftDeleteUser(ctx, id); err != nil {
		return translate(err, "user")
	}
	slog.InfoContext(ctx, "user deleted", "user_id", id)
	return nil
}

// Memberships lists the tenants a user belongs to, default first.
func (s *UserService) Memberships(ctx context.Context, userID uuid.UUID) ([]*models.UserTenant, error) {
	ms, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return ms, nil
}

// EnsureSuperAdmin creates a platform super-admin with the given credentials
// unless a user with that email already exists. It reports whether a user
// was created.
func (s *UserService) EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	ctx = tenancy.WithSystemScope(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("look up super-admin: %w", err)
	}

	var v validator
	v.email(email, "email")
	v.password(password, "password")
	if err := v.err(); err != nil {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	u := &models.User{
		ID:           uuid.New(),
		FirstName:    "Platform",
		LastName:     "Admin",
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{models.RoleSuperAdmin},
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return false, translate(err, "user")
	}
	slog.InfoContext(ctx, "super-admin created", "user_id", u.ID, "email", email)
	return true, nil
}
