// Package errs contiene la taxonomía de errores del workflow de onboarding,
// consents e invitaciones. Los controllers los traducen en el borde HTTP.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrRaceLost indica que otro actor concurrente ya completó la operación.
// Es interno: quien lo recibe lo trata como éxito.
var ErrRaceLost = errors.New("operation already completed by a concurrent actor")

// ValidationError es input malformado o que viola una política.
// No es reintentable sin cambiar el input.
type ValidationError struct {
	// Fields mapea campo → razones (ej: "password" → ["too_short", "missing_digit"]).
	Fields map[string][]string
}

// Validation crea un ValidationError para un campo.
func Validation(field string, reasons ...string) *ValidationError {
	v := &ValidationError{}
	return v.Add(field, reasons...)
}

// Add agrega razones a un campo y retorna el mismo error (encadenable).
func (e *ValidationError) Add(field string, reasons ...string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	if len(reasons) == 0 {
		reasons = []string{"invalid"}
	}
	e.Fields[field] = append(e.Fields[field], reasons...)
	return e
}

// Empty reporta si no se acumuló ninguna razón.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Has reporta si el campo tiene la razón dada.
func (e *ValidationError) Has(field, reason string) bool {
	if e == nil {
		return false
	}
	for _, r := range e.Fields[field] {
		if r == reason {
			return true
		}
	}
	return false
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], ",")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation extrae el ValidationError si err lo contiene.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// TokenKind distingue por qué un token de invitación/registro no sirve.
type TokenKind string

const (
	TokenExpired TokenKind = "expired"
	TokenUsed    TokenKind = "used"
	TokenInvalid TokenKind = "invalid"
)

// TokenError es un token vencido, ya consumido o inexistente.
type TokenError struct {
	Kind TokenKind
	// What describe el token ("invitation", "registration", "verification code").
	What string
}

func (e *TokenError) Error() string {
	what := e.What
	if what == "" {
		what = "token"
	}
	switch e.Kind {
	case TokenExpired:
		return what + " expired"
	case TokenUsed:
		return what + " is no longer valid"
	default:
		return what + " is invalid"
	}
}

// Token crea un TokenError.
func Token(kind TokenKind, what string) *TokenError {
	return &TokenError{Kind: kind, What: what}
}

// IsToken extrae el TokenError si err lo contiene.
func IsToken(err error) (*TokenError, bool) {
	var t *TokenError
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// SyncWarning es un paso de sync local que falló sin invalidar la operación principal.
// Se loguea y queda para seguimiento manual; nunca llega al usuario.
type SyncWarning struct {
	Step     string // "role_assignment", "wallet", "tenant_user_sync"
	TenantID string
	Err      error
}

func (w SyncWarning) Error() string {
	return fmt.Sprintf("sync warning [%s] tenant=%s: %v", w.Step, w.TenantID, w.Err)
}

func (w SyncWarning) Unwrap() error { return w.Err }
