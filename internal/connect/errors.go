package connect

import (
	"errors"

	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
)

// APIError maps connect and config store errors for provider p.
func APIError(p integrations.Provider, err error) *apierrors.APIError {
	switch {
	case errors.Is(err, integrations.ErrNotConnected):
		return apierrors.NotConnected(string(p))
	case errors.Is(err, ErrTokenExpired):
		return apierrors.NotConnected(string(p)).WithDetails("token expired, reconnect the account")
	case errors.Is(err, ErrNotOAuth), errors.Is(err, ErrNotConfigured):
		return apierrors.BadRequest(err.Error())
	case errors.Is(err, ErrInvalidState):
		return apierrors.BadRequest("invalid or expired authorization state")
	case errors.Is(err, ErrNoWebflowSites):
		return apierrors.ValidationError("token", err.Error())
	case errors.Is(err, ErrPageNotManaged):
		return apierrors.ValidationError(integrations.SettingPageID, err.Error())
	case errors.Is(err, integrations.ErrSettingNotEditable):
		return apierrors.ValidationError("settings", err.Error())
	default:
		return apierrors.From(err)
	}
}
