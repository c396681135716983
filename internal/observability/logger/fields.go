package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

func RequestID(v string) zap.Field  { return zap.String("request_id", v) }
func Method(v string) zap.Field     { return zap.String("method", v) }
func Path(v string) zap.Field       { return zap.String("path", v) }
func Route(v string) zap.Field      { return zap.String("route", v) }
func Status(v int) zap.Field        { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field  { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field         { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field   { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field  { return zap.String("user_agent", v) }
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// TenantID identifica al tenant (slug inmutable).
func TenantID(v string) zap.Field { return zap.String("tenant_id", v) }

// UserID es el id del usuario central.
func UserID(v int64) zap.Field { return zap.Int64("user_id", v) }

// LocalUserID es el id del usuario dentro de la base del tenant.
func LocalUserID(v int64) zap.Field { return zap.Int64("local_user_id", v) }

// Email: usar con cuidado en prod.
func Email(v string) zap.Field { return zap.String("email", v) }

// RegistrationID es el UUID de la PendingRegistration (correlation id del pago).
func RegistrationID(v string) zap.Field { return zap.String("registration_id", v) }

// SessionID es el id de la checkout session del proveedor de pagos.
func SessionID(v string) zap.Field { return zap.String("checkout_session_id", v) }

// CustomerID es el id de customer del proveedor de pagos.
func CustomerID(v string) zap.Field { return zap.String("customer_id", v) }

func SubscriptionID(v string) zap.Field { return zap.String("subscription_id", v) }
func EventID(v string) zap.Field        { return zap.String("event_id", v) }
func EventType(v string) zap.Field      { return zap.String("event_type", v) }
func EntityKind(v string) zap.Field     { return zap.String("entity_kind", v) }
func EntityID(v int64) zap.Field        { return zap.Int64("entity_id", v) }
func InvitationID(v int64) zap.Field    { return zap.Int64("invitation_id", v) }
func Role(v string) zap.Field           { return zap.String("role", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer: handler, controller, service, repository.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Step(v string) zap.Field    { return zap.String("step", v) }
func Attempt(v int) zap.Field    { return zap.Int("attempt", v) }
func Err(err error) zap.Field    { return zap.Error(err) }
func Count(v int) zap.Field      { return zap.Int("count", v) }
func Key(v string) zap.Field     { return zap.String("key", v) }
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}
func String(key, v string) zap.Field { return zap.String(key, v) }
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
