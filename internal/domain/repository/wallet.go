package repository

import (
	"context"
	"time"
)

// WalletOwnerSystem identifica la wallet de sistema del tenant.
const WalletOwnerSystem = "SYSTEM"

// Wallet es la cuenta contable usada por features de facturación del tenant.
type Wallet struct {
	ID           int64
	OwnerType    string
	Name         string
	Currency     string
	BalanceCents int64
	CreatedAt    time.Time
}

type WalletRepository interface {
	// EnsureSystemWallet crea la wallet de sistema si no existe.
	EnsureSystemWallet(ctx context.Context, currency string) (w *Wallet, created bool, err error)
	GetSystemWallet(ctx context.Context) (*Wallet, error)
}
