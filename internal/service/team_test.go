package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/pkg/util"
)

func TestCreateTeamMemberNormalizesInput(t *testing.T) {
	svc := NewTeamService(repository.NewMemoryTeamMemberRepository())

	member, err := svc.Create(context.Background(), "  Dana Reyes ", " Dana.Reyes@Example.COM ", " agent ")
	require.NoError(t, err)
	assert.NotEmpty(t, member.ID)
	assert.Equal(t, "Dana Reyes", member.Name)
	assert.Equal(t, "dana.reyes@example.com", member.Email)
	assert.Equal(t, "agent", member.Role)
	assert.True(t, member.Active)
}

func TestCreateTeamMemberRequiresNameAndEmail(t *testing.T) {
	svc := NewTeamService(repository.NewMemoryTeamMemberRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "dana@example.com", "agent")
	assert.True(t, util.HasCode(err, util.CodeValidationFailed))

	_, err = svc.Create(ctx, "Dana", "   ", "agent")
	assert.True(t, util.HasCode(err, util.CodeValidationFailed))
}

func TestListTeamMembersActiveOnly(t *testing.T) {
	members := repository.NewMemoryTeamMemberRepository()
	svc := NewTeamService(members)
	ctx := context.Background()

	active, err := svc.Create(ctx, "Dana", "dana@example.com", "agent")
	require.NoError(t, err)
	require.NoError(t, members.Create(ctx, &domain.TeamMember{
		Name: "Sam", Email: "sam@example.com", Role: "agent", Active: false,
	}))

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}

func TestGetTeamMemberNotFound(t *testing.T) {
	svc := NewTeamService(repository.NewMemoryTeamMemberRepository())

	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, util.HasCode(err, util.CodeNotFound))
}
