package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/limspace/be-lims-approvals/internal/apperrors"
	"github.com/limspace/be-lims-approvals/internal/approval"
	"github.com/limspace/be-lims-approvals/internal/database"
)

// UserRepository resolves actors from the shared identity tables. Read-only:
// the approval service never mutates identity data.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser returns a user with their resolved role codes and department.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*approval.User, error) {
	userQuery := `
		SELECT id, username, name, dept_id
		FROM users
		WHERE id = $1
	`

	user := &approval.User{}
	var deptID *string
	err := r.db.QueryRow(ctx, userQuery, userID).Scan(&user.ID, &user.Username, &user.Name, &deptID)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("user", userID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get user")
	}
	if deptID != nil {
		user.DeptID = *deptID
	}

	rolesQuery := `
		SELECT r.code
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.code ASC
	`

	rows, err := r.db.Query(ctx, rolesQuery, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get user roles")
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan role code")
		}
		user.RoleCodes = append(user.RoleCodes, code)
	}
	return user, nil
}
