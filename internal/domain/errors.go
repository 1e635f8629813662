package domain

import "fmt"

// Error is a client-facing failure with a stable code and the HTTP status it
// maps to. Anything that is not a *Error surfaces as a 500.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

var (
	ErrDuplicateEmail     = &Error{Code: "duplicate_email", Description: "An account with this email already exists.", Status: 409}
	ErrInvalidCredentials = &Error{Code: "invalid_credentials", Description: "Wrong email or password.", Status: 401}
	ErrNotVerified        = &Error{Code: "not_verified", Description: "Email address is not verified.", Status: 401}
	ErrInvalidToken       = &Error{Code: "invalid_token", Description: "Token is invalid or expired.", Status: 401}
	ErrUnauthorized       = &Error{Code: "unauthorized", Description: "Authentication required.", Status: 401}
	ErrForbidden          = &Error{Code: "forbidden", Description: "Insufficient privileges.", Status: 403}
	ErrNotFound           = &Error{Code: "not_found", Description: "Resource not found.", Status: 404}
)
