package session

import "errors"

var (
	ErrAlreadyRegistered   = errors.New("session: client is already registered")
	ErrNotFound            = errors.New("session: client is not registered")
	ErrNoCredential        = errors.New("session: no stored credential")
	ErrEngineInit          = errors.New("session: engine initialization failed")
	ErrRegistrationTimeout = errors.New("session: registration timed out")
	ErrResetNotAllowed     = errors.New("session: reset requires a ready client")
	ErrNotReady            = errors.New("session: client is not ready")
	ErrInvalidPhone        = errors.New("session: invalid phone number")
)
