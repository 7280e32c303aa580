package sessions

import (
	"time"

	"github.com/jrsteele09/dentalization-auth/users"
)

// State is the position of a session in its lifecycle.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

func (s State) String() string {
	return string(s)
}

// Snapshot is a point-in-time copy of a session. IsAuthenticated implies a
// non-nil User and a non-empty AccessToken.
type Snapshot struct {
	State           State       `json:"state"`
	User            *users.User `json:"user"`
	AccessToken     string      `json:"accessToken,omitempty"`
	RefreshToken    string      `json:"refreshToken,omitempty"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsLoading       bool        `json:"isLoading"`
	RememberMe      bool        `json:"rememberMe"`
	LastLogin       *time.Time  `json:"lastLogin,omitempty"`
	TokenExpiry     *time.Time  `json:"tokenExpiry,omitempty"`
}

// Role is the role of the session's user, or empty when there is none.
func (s Snapshot) Role() users.RoleType {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// session is the manager's in-memory mirror of the persisted store.
type session struct {
	user          *users.User
	accessToken   string
	refreshToken  string
	authenticated bool
	rememberMe    bool
	lastLogin     time.Time
	tokenExpiry   time.Time
}

func (s *session) snapshot(state State, loading bool) Snapshot {
	snap := Snapshot{
		State:           state,
		AccessToken:     s.accessToken,
		RefreshToken:    s.refreshToken,
		IsAuthenticated: s.isAuthenticated(),
		IsLoading:       loading,
		RememberMe:      s.rememberMe,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if !s.lastLogin.IsZero() {
		t := s.lastLogin
		snap.LastLogin = &t
	}
	if !s.tokenExpiry.IsZero() {
		t := s.tokenExpiry
		snap.TokenExpiry = &t
	}
	return snap
}

func (s *session) isAuthenticated() bool {
	return s.authenticated && s.user != nil && s.accessToken != ""
}
