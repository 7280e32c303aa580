package auth

import autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"

var (
	ErrNoBackend           = &autherrors.Error{Kind: autherrors.KindUnavailable, Message: "no auth backend available"}
	ErrRecoveryUnsupported = &autherrors.Error{Kind: autherrors.KindUnavailable, Message: "no backend supports account recovery"}
)
