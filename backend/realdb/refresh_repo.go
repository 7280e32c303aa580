package realdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/token/refresh"
)

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo stores refresh token records in PostgreSQL.
type RefreshTokenRepo struct {
	db DBTX
}

func NewRefreshTokenRepo(db DBTX) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Upsert(ctx context.Context, rt *refresh.StoredRefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (token, user_id, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, issued_at = EXCLUDED.issued_at`,
		rt.Token, rt.UserID, rt.Iat,
	)
	return classify("[RefreshTokenRepo.Upsert]", err)
}

func (r *RefreshTokenRepo) Delete(ctx context.Context, token string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return classify("[RefreshTokenRepo.Delete]", err)
	}
	if ct.RowsAffected() == 0 {
		return autherrors.ErrNotFound
	}
	return nil
}

func (r *RefreshTokenRepo) Get(ctx context.Context, token string) (*refresh.StoredRefreshToken, error) {
	return r.scan(ctx, "[RefreshTokenRepo.Get]", `SELECT token, user_id, issued_at FROM refresh_tokens WHERE token = $1`, token)
}

func (r *RefreshTokenRepo) GetByUserID(ctx context.Context, userID string) (*refresh.StoredRefreshToken, error) {
	return r.scan(ctx, "[RefreshTokenRepo.GetByUserID]",
		`SELECT token, user_id, issued_at FROM refresh_tokens WHERE user_id = $1 ORDER BY issued_at DESC LIMIT 1`, userID)
}

func (r *RefreshTokenRepo) scan(ctx context.Context, op, query string, arg string) (*refresh.StoredRefreshToken, error) {
	var rt refresh.StoredRefreshToken
	if err := r.db.QueryRow(ctx, query, arg).Scan(&rt.Token, &rt.UserID, &rt.Iat); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autherrors.ErrNotFound
		}
		return nil, classify(op, err)
	}
	return &rt, nil
}
