// Package logger expone un logger Zap singleton con scoping por contexto.
//
//   - Init(Config) una sola vez en main; L() devuelve el singleton.
//   - Los middlewares HTTP inyectan un logger "scoped" (request_id, tenant_id)
//     con ToContext; services y repos lo recuperan con From(ctx).
//   - Env "dev" usa consola con colores, "prod" JSON, "test" descarta todo.
//
// Uso típico en un service:
//
//	log := logger.From(ctx).With(
//	    logger.Layer("service"),
//	    logger.Component("onboarding"),
//	    logger.Op("ReconcilePayment"),
//	)
//	log.Info("tenant created", logger.TenantID(t.ID))
package logger
