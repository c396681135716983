package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync/atomic"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

var exposeDetails atomic.Bool

// ExposeDetails habilita el campo detail con la causa original (fuera de prod).
func ExposeDetails(on bool) { exposeDetails.Store(on) }

type errorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Detail  string              `json:"detail,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// WriteError escribe la respuesta JSON de err, mapeando errores de dominio.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
		Fields:  appErr.Fields,
	}
	if resp.Detail == "" && appErr.Err != nil && exposeDetails.Load() {
		resp.Detail = appErr.Err.Error()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError traduce errores de las capas de dominio, billing y repositorio.
// Lo desconocido es un 500 que conserva la causa para el log.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	if ve, ok := errs.IsValidation(err); ok {
		return ErrValidation.WithFields(ve.Fields).WithCause(err)
	}
	if te, ok := errs.IsToken(err); ok {
		switch te.Kind {
		case errs.TokenExpired:
			return ErrTokenExpired.WithCause(err)
		case errs.TokenUsed:
			return ErrTokenUsed.WithCause(err)
		default:
			return ErrTokenInvalid.WithCause(err)
		}
	}
	if pe, ok := billing.IsProviderError(err); ok {
		if pe.NotFound() {
			return ErrNotFound.WithCause(err)
		}
		return ErrPaymentProvider.WithCause(err)
	}
	switch {
	case repository.IsNotFound(err):
		return ErrNotFound.WithCause(err)
	case repository.IsConflict(err):
		return ErrConflict.WithCause(err)
	case repository.IsNoDatabase(err):
		return ErrTenantNotReady.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}
