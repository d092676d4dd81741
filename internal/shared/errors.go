package shared

import (
	"fmt"

	"github.com/dukapos/dukapos/internal/platform/httpx"
)

// Sentinel errors shared across domain packages. Each wraps an httpx sentinel
// so handlers can delegate status mapping to httpx.RespondError.
var (
	// ErrNotFound indicates a missing resource.
	ErrNotFound = fmt.Errorf("%w", httpx.ErrNotFound)
	// ErrInvalidCredentials is returned for unknown identifiers and password
	// mismatches alike, so callers cannot probe which accounts exist.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)
	// ErrAccountInactive rejects disabled accounts even with valid credentials.
	ErrAccountInactive = fmt.Errorf("%w", httpx.ErrInactive)
	// ErrTokenExpired rejects bearer tokens past their expiry.
	ErrTokenExpired = fmt.Errorf("%w: token expired", httpx.ErrUnauthorized)
	// ErrTokenInvalid rejects malformed or badly signed bearer tokens.
	ErrTokenInvalid = fmt.Errorf("%w: token invalid", httpx.ErrUnauthorized)
	// ErrForbidden rejects authenticated callers lacking role or ownership.
	ErrForbidden = fmt.Errorf("%w", httpx.ErrForbidden)
)
