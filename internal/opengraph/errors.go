package opengraph

import (
	"errors"

	apierrors "github.com/zfogg/beacon/internal/errors"
)

// APIError maps template errors to API errors.
func APIError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, ErrTemplateNotFound):
		return apierrors.NotFound("template")
	case errors.Is(err, ErrElementNotFound):
		return apierrors.NotFound("element")
	case errors.Is(err, ErrVarTooLong):
		return apierrors.ValidationError("vars", err.Error())
	}
	return apierrors.From(err)
}
