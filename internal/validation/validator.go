// Package validation valida DTOs con go-playground/validator y traduce los
// fallos a errs.ValidationError, usando el nombre JSON de cada campo.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// V retorna el validator compartido con los tags custom registrados.
func V() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("consentkey", func(fl validator.FieldLevel) bool {
			return ValidConsentKey(fl.Field().String())
		})
		_ = v.RegisterValidation("entitykind", func(fl validator.FieldLevel) bool {
			s := strings.ToUpper(fl.Field().String())
			return s == "PATIENT" || s == "PRACTITIONER"
		})
		instance = v
	})
	return instance
}

// Struct valida s y retorna *errs.ValidationError si algún campo falla.
func Struct(s any) error {
	err := V().Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &errs.ValidationError{}
	for _, fe := range ves {
		out.Add(fe.Field(), reason(fe))
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "invalid_email"
	case "min":
		return "too_short"
	case "max":
		return "too_long"
	case "eqfield":
		return "mismatch"
	case "hostname_rfc1123", "fqdn":
		return "invalid_domain"
	default:
		return "invalid_" + fe.Tag()
	}
}
