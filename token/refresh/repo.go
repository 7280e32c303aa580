package refresh

import (
	"context"
	"time"
)

// StoredRefreshToken is the server-side record behind an opaque refresh token.
// The client only receives Token.
type StoredRefreshToken struct {
	Token  string    // The random token string sent to the client
	UserID string    // Owner of the token
	Iat    time.Time // Issued at
}

// Repo stores refresh token records keyed by the token string.
type Repo interface {
	Upsert(ctx context.Context, refreshToken *StoredRefreshToken) error
	Delete(ctx context.Context, token string) error
	Get(ctx context.Context, token string) (*StoredRefreshToken, error)
	GetByUserID(ctx context.Context, userID string) (*StoredRefreshToken, error)
}
