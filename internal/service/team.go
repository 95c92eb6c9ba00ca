package service

import (
	"context"
	"strings"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

// TeamService manages the support team roster.
type TeamService struct {
	members repository.TeamMemberRepository
}

// NewTeamService constructs the team service.
func NewTeamService(members repository.TeamMemberRepository) *TeamService {
	return &TeamService{members: members}
}

// Create registers a new team member.
func (s *TeamService) Create(ctx context.Context, name, email, role string) (*domain.TeamMember, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" {
		return nil, util.NewValidationError("name and email are required", nil)
	}
	member := &domain.TeamMember{
		Name:   name,
		Email:  email,
		Role:   strings.TrimSpace(role),
		Active: true,
	}
	if err := s.members.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// List returns team members, optionally only active ones.
func (s *TeamService) List(ctx context.Context, activeOnly bool) ([]domain.TeamMember, error) {
	return s.members.List(ctx, activeOnly)
}

// Get returns a member by id.
func (s *TeamService) Get(ctx context.Context, id string) (*domain.TeamMember, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, util.NewNotFound("team member", map[string]any{"member_id": id})
		}
		return nil, err
	}
	return member, nil
}
