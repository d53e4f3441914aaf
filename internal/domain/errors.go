package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all site adapters (sentinels).
//
// ErrLoginRequired is distinct from ErrLogin: it means an established session
// lapsed and the caller should refresh cookies and retry the unit of work,
// while ErrLogin (and its sub-kinds) is a permanent credential failure.
var (
	ErrConnection    = errors.New("connection error")
	ErrLogin         = errors.New("login error")
	ErrUserNotExist  = fmt.Errorf("%w: user not exist", ErrLogin)
	ErrPasswordError = fmt.Errorf("%w: password error", ErrLogin)
	ErrLoginRequired = errors.New("login required")
	ErrSubmit        = errors.New("submit error")

	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)
