package realdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/users"
)

var _ users.Repo = (*UserRepo)(nil)

const selectUser = `
	SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.phone, u.role, u.status,
	       u.is_verified, u.preferred_language, u.created_at, u.updated_at,
	       COALESCE(p.date_of_birth, ''), COALESCE(p.gender, ''), COALESCE(p.address, ''),
	       COALESCE(p.emergency_contact_name, ''), COALESCE(p.emergency_contact_phone, ''),
	       COALESCE(p.allergies, ''), COALESCE(p.medical_history, ''),
	       COALESCE(d.license_number, ''), COALESCE(d.specialization, ''), d.years_of_experience,
	       COALESCE(d.clinic_name, ''), COALESCE(d.clinic_address, '')
	FROM users u
	LEFT JOIN patients p ON p.user_id = u.id
	LEFT JOIN dentists d ON d.user_id = u.id`

// UserRepo stores identities and their role profile in PostgreSQL.
type UserRepo struct {
	db      DBTX
	nowTime func() time.Time
}

func NewUserRepo(db DBTX, nowTime func() time.Time) *UserRepo {
	return &UserRepo{db: db, nowTime: nowTime}
}

// Create inserts the user and, for patients and dentists, the matching
// profile row in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *users.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classify("[UserRepo.Create] begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, status, is_verified, preferred_language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.Phone,
		u.Role.BackendName(),
		statusName(u.Status),
		u.IsVerified,
		u.Language,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return autherrors.WithOp(autherrors.ErrUserExists, "[UserRepo.Create]")
		}
		return classify("[UserRepo.Create] insert user", err)
	}

	switch u.Role {
	case users.RolePatient:
		_, err = tx.Exec(ctx, `
			INSERT INTO patients (user_id, date_of_birth, gender, address, emergency_contact_name, emergency_contact_phone, allergies, medical_history)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			u.ID,
			u.DateOfBirth,
			u.Gender,
			u.Address,
			u.EmergencyContactName,
			u.EmergencyContactPhone,
			u.Allergies,
			u.MedicalHistory,
		)
	case users.RoleDentist:
		_, err = tx.Exec(ctx, `
			INSERT INTO dentists (user_id, license_number, specialization, years_of_experience, clinic_name, clinic_address)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			u.ID,
			u.LicenseNumber,
			u.Specialization,
			u.YearsOfExperience,
			u.ClinicName,
			u.ClinicAddress,
		)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return autherrors.New(autherrors.KindAlreadyExists, "[UserRepo.Create]", "license number already registered")
		}
		return classify("[UserRepo.Create] insert profile", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("[UserRepo.Create] commit", err)
	}
	return nil
}

// Update writes the core identity columns. Profile rows are left unchanged.
func (r *UserRepo) Update(ctx context.Context, u *users.User) error {
	u.UpdatedAt = r.nowTime().UTC()

	ct, err := r.db.Exec(ctx, `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, phone = $4, status = $5,
		    is_verified = $6, preferred_language = $7, updated_at = $8
		WHERE id = $9`,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Phone,
		statusName(u.Status),
		u.IsVerified,
		u.Language,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return autherrors.WithOp(autherrors.ErrUserExists, "[UserRepo.Update]")
		}
		return classify("[UserRepo.Update]", err)
	}
	if ct.RowsAffected() == 0 {
		return autherrors.WithOp(autherrors.ErrUserNotFound, "[UserRepo.Update]")
	}
	return nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.scanUser(ctx, "[UserRepo.GetByEmail]", selectUser+` WHERE u.email = $1`, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.scanUser(ctx, "[UserRepo.GetByID]", selectUser+` WHERE u.id = $1`, id)
}

func (r *UserRepo) scanUser(ctx context.Context, op, query string, args ...any) (*users.User, error) {
	var (
		u      users.User
		role   string
		status string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&role,
		&status,
		&u.IsVerified,
		&u.Language,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.DateOfBirth,
		&u.Gender,
		&u.Address,
		&u.EmergencyContactName,
		&u.EmergencyContactPhone,
		&u.Allergies,
		&u.MedicalHistory,
		&u.LicenseNumber,
		&u.Specialization,
		&u.YearsOfExperience,
		&u.ClinicName,
		&u.ClinicAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherrors.WithOp(autherrors.ErrUserNotFound, op)
		}
		return nil, classify(op, err)
	}

	u.Role = users.ParseRole(role)
	u.Status = users.ParseStatus(status)
	u.IsActive = u.Status == users.StatusActive
	if u.Language == "" {
		u.Language = users.DefaultLanguage
	}
	return &u, nil
}

// statusName is the upper-case status stored in the database.
func statusName(s users.StatusType) string {
	if s == "" {
		s = users.StatusActive
	}
	return strings.ToUpper(string(s))
}
