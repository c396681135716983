// Package email envía los correos del onboarding y de las invitaciones.
//
// Arquitectura:
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│            onboarding / provisioning / invitation               │
//	└───────────────────────────┬─────────────────────────────────────┘
//	                            │
//	                            ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                          Mailer                                 │
//	│    - SendVerificationCode(ctx, to, code, ttl)                   │
//	│    - SendInvitation(ctx, InvitationMail)                        │
//	│    - SendWelcome(ctx, WelcomeMail)                              │
//	└───────────────────────────┬─────────────────────────────────────┘
//	                            │ templates embebidos + Organization
//	                            ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                 Sender (SMTPSender | LogSender)                 │
//	└─────────────────────────────────────────────────────────────────┘
package email
