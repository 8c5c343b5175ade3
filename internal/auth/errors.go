package auth

import (
	"errors"

	apierrors "github.com/zfogg/beacon/internal/errors"
)

// APIError maps auth and organization errors onto API errors.
func APIError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, ErrUserExists):
		return apierrors.Conflict("user")
	case errors.Is(err, ErrInvalidCredentials):
		return apierrors.Unauthorized("invalid email or password")
	case errors.Is(err, ErrTOTPRequired):
		return apierrors.Unauthorized("two-factor code required").WithDetails("totp_required")
	case errors.Is(err, ErrInvalidTOTP):
		return apierrors.Unauthorized("invalid two-factor code")
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
		return apierrors.Unauthorized("invalid or expired session")
	case errors.Is(err, ErrTOTPNotSetUp), errors.Is(err, ErrTOTPEnabled), errors.Is(err, ErrTOTPNotEnabled):
		return apierrors.BadRequest(err.Error())
	case errors.Is(err, ErrNotMember):
		return apierrors.Forbidden(err.Error())
	case errors.Is(err, ErrForbidden):
		return apierrors.Forbidden("only owners and admins can do this")
	case errors.Is(err, ErrInvalidRole):
		return apierrors.ValidationError("role", "role must be admin or member")
	case errors.Is(err, ErrAlreadyMember):
		return apierrors.Conflict("membership")
	case errors.Is(err, ErrInvitationNotFound):
		return apierrors.NotFound("invitation")
	case errors.Is(err, ErrInvitationExpired), errors.Is(err, ErrInvitationUsed), errors.Is(err, ErrInvitationMismatch):
		return apierrors.BadRequest(err.Error())
	default:
		return apierrors.From(err)
	}
}
