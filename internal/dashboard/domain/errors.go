package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrForbidden          = errors.New("forbidden")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidID          = errors.New("invalid_user_id")
	ErrUserExists         = errors.New("user_already_exists")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidRoute       = errors.New("invalid_route")
)
