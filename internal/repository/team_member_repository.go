package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TeamMemberRepository handles persistence for assignment targets.
type TeamMemberRepository interface {
	Create(ctx context.Context, member *domain.TeamMember) error
	GetByID(ctx context.Context, id string) (*domain.TeamMember, error)
	List(ctx context.Context, activeOnly bool) ([]domain.TeamMember, error)
}

type teamMemberRepository struct {
	pool *pgxpool.Pool
}

// NewTeamMemberRepository instantiates the repository.
func NewTeamMemberRepository(pool *pgxpool.Pool) TeamMemberRepository {
	return &teamMemberRepository{pool: pool}
}

func (r *teamMemberRepository) Create(ctx context.Context, member *domain.TeamMember) error {
	const query = `
        INSERT INTO team_members (name, email, role, active_flag)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		member.Name,
		member.Email,
		member.Role,
		member.Active,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
}

func (r *teamMemberRepository) GetByID(ctx context.Context, id string) (*domain.TeamMember, error) {
	const query = `
        SELECT id, name, email, role, active_flag, created_at, updated_at
        FROM team_members WHERE id=$1`
	var member domain.TeamMember
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&member.ID,
		&member.Name,
		&member.Email,
		&member.Role,
		&member.Active,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *teamMemberRepository) List(ctx context.Context, activeOnly bool) ([]domain.TeamMember, error) {
	query := `
        SELECT id, name, email, role, active_flag, created_at, updated_at
        FROM team_members`
	if activeOnly {
		query += ` WHERE active_flag = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TeamMember
	for rows.Next() {
		var member domain.TeamMember
		if err := rows.Scan(
			&member.ID,
			&member.Name,
			&member.Email,
			&member.Role,
			&member.Active,
			&member.CreatedAt,
			&member.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, member)
	}
	return result, rows.Err()
}
