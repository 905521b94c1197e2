package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/account-service/internal/domain"
)

// ErrUnboundedUpdate is returned when an update-by-filter has no predicate.
var ErrUnboundedUpdate = errors.New("update requires a non-empty filter")

// UserRepository defines persistence access for user accounts.
type UserRepository interface {
	// Create inserts the user and, when user.Credential is set, its local
	// credential in the same transaction.
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, id string, changes domain.UserChanges) (int64, error)
	UpdateWhere(ctx context.Context, filter UserFilter, changes domain.UserChanges) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindOne(ctx context.Context, filter UserFilter) (*domain.User, error)
	FindAll(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context, filter UserFilter) (int64, error)
	GetCredential(ctx context.Context, userID string) (*domain.Credential, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, email, firstname, lastname, mobile_number, photo,
        graduation_year, verified_email, role, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const insertUser = `
        INSERT INTO users (username, email, firstname, lastname, mobile_number, photo,
            graduation_year, verified_email, role)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at, updated_at`
	const insertCredential = `
        INSERT INTO user_locals (user_id, password_hash)
        VALUES ($1, $2)`

	if user.Role == "" {
		user.Role = domain.UserRoleMember
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertUser,
			user.Username,
			user.Email,
			user.Firstname,
			user.Lastname,
			user.MobileNumber,
			user.Photo,
			user.GraduationYear,
			user.VerifiedEmail,
			user.Role,
		).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return err
		}
		if user.Credential == nil {
			return nil
		}
		user.Credential.UserID = user.ID
		_, err := tx.Exec(ctx, insertCredential, user.ID, user.Credential.PasswordHash)
		return err
	})
	if err != nil {
		// the transaction rolled back, so nothing the RETURNING clause filled in exists
		user.ID = ""
		if user.Credential != nil {
			user.Credential.UserID = ""
		}
		return err
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, id string, changes domain.UserChanges) (int64, error) {
	return r.UpdateWhere(ctx, UserFilter{ID: id}, changes)
}

func (r *userRepository) UpdateWhere(ctx context.Context, filter UserFilter, changes domain.UserChanges) (int64, error) {
	if filter.Empty() {
		return 0, ErrUnboundedUpdate
	}
	if changes.Empty() {
		return 0, nil
	}

	set, args := setClause(changes, nil)
	where, args := filter.where(args)

	cmd, err := r.pool.Exec(ctx, "UPDATE users SET "+set+where, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.FindOne(ctx, UserFilter{ID: id})
}

func (r *userRepository) FindOne(ctx context.Context, filter UserFilter) (*domain.User, error) {
	where, args := filter.where(nil)
	query := "SELECT " + userColumns + " FROM users" + where + " ORDER BY created_at LIMIT 1"

	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) FindAll(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	where, args := filter.where(nil)
	query := "SELECT " + userColumns + " FROM users" + where + " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) Count(ctx context.Context, filter UserFilter) (int64, error) {
	where, args := filter.where(nil)

	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *userRepository) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	const query = `SELECT user_id, password_hash FROM user_locals WHERE user_id=$1`

	var cred domain.Credential
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&cred.UserID, &cred.PasswordHash); err != nil {
		return nil, err
	}
	return &cred, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Firstname,
		&user.Lastname,
		&user.MobileNumber,
		&user.Photo,
		&user.GraduationYear,
		&user.VerifiedEmail,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
