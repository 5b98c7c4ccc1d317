package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/realtime"
)

type ProfileService struct {
	*base
}

type ProfileInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
	Role  *string `json:"role"`
}

func (in ProfileInput) apply(p *repository.Profile) error {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			addr, err := mail.ParseAddress(email)
			if err != nil {
				return invalid("email", "must be a valid email address")
			}
			email = addr.Address
		}
		p.Email = email
	}
	if in.Phone != nil {
		p.Phone = strings.TrimSpace(*in.Phone)
	}
	return nil
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, actor Actor) (*repository.Profile, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	p, err := s.profiles.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Create makes the caller's profile. Only admins may create admin profiles.
func (s *ProfileService) Create(ctx context.Context, actor Actor, in ProfileInput) (*repository.Profile, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	role := repository.RoleCustomer
	if in.Role != nil && strings.TrimSpace(*in.Role) != "" {
		role = strings.ToLower(strings.TrimSpace(*in.Role))
	}
	switch role {
	case repository.RoleCustomer:
	case repository.RoleAdmin:
		if !actor.IsAdmin() {
			return nil, ErrForbidden
		}
	default:
		return nil, invalid("role", "must be admin or customer")
	}
	existing, err := s.profiles.Get(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: profile already exists", ErrConflict)
	}
	now := s.now()
	p := repository.Profile{UserID: actor.UserID, Role: role, CreatedAt: now, UpdatedAt: now}
	if err := in.apply(&p); err != nil {
		return nil, err
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	s.log.Info("profile created", zap.String("user_id", p.UserID), zap.String("role", p.Role))
	s.publishProfile(realtime.ActionInsert, &p)
	return &p, nil
}

// Update edits the caller's contact details. The role cannot change here.
func (s *ProfileService) Update(ctx context.Context, actor Actor, in ProfileInput) (*repository.Profile, error) {
	p, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	if in.Role != nil && !strings.EqualFold(strings.TrimSpace(*in.Role), p.Role) {
		return nil, fmt.Errorf("%w: role cannot be changed", ErrForbidden)
	}
	if err := in.apply(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.profiles.Upsert(ctx, *p); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.publishProfile(realtime.ActionUpdate, p)
	return p, nil
}

// Role resolves the stored role for a user ID; missing profiles are customers.
func (s *ProfileService) Role(ctx context.Context, userID string) (string, error) {
	return s.profiles.Role(ctx, userID)
}

func (s *ProfileService) publishProfile(action string, p *repository.Profile) {
	s.publish("user_profiles", action, p.UserID, &repository.Request{UserID: p.UserID})
}
