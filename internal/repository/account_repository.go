package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// AccountRepo reads the 'users' table.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

const accountColumns = "id,email,password_hash,role,COALESCE(docente_id,''),COALESCE(alumno_id,''),created_at"

// Create inserts an account whose PasswordHash is already hashed.  An
// existing email is left untouched.
func (r *AccountRepo) Create(ctx context.Context, a model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO users (id,email,password_hash,role,docente_id,alumno_id) VALUES (?,?,?,?,NULLIF(?,''),NULLIF(?,''))",
		a.ID, strings.ToLower(strings.TrimSpace(a.Email)), a.PasswordHash, a.Role, a.TeacherID, a.StudentID)
	return err
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scan(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (model.Account, error) {
	return r.scan(r.DB.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM users WHERE id=? LIMIT 1", id))
}

func (r *AccountRepo) scan(row *sql.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.TeacherID, &a.StudentID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}
