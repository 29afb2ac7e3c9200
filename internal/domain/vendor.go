package domain

import (
	"context"
	"time"
)

// VendorClient is the authenticated backoffice API of the gambling platform vendor.
// Session acquisition happens behind Reauthenticate.
type VendorClient interface {
	// FetchPendingWithdrawals lists payout requests awaiting a decision.
	FetchPendingWithdrawals(ctx context.Context) ([]WithdrawalRequest, error)

	// FetchTransactions returns the ledger for the lookback window, newest first.
	FetchTransactions(ctx context.Context, clientID string, lookbackDays int) ([]Transaction, error)

	FetchBetHistory(ctx context.Context, clientID string, from, to time.Time) ([]BetRecord, error)
	FetchLoginHistory(ctx context.Context, clientID string, days int) ([]LoginRecord, error)
	FetchAccountsByIP(ctx context.Context, ip string) ([]AccountSummary, error)
	FetchClientProfile(ctx context.Context, clientID string) (*ClientProfile, error)

	// SubmitPayout executes an approved withdrawal.
	SubmitPayout(ctx context.Context, w WithdrawalRequest) (*PayoutConfirmation, error)

	// Reauthenticate forces a fresh session after an auth failure.
	Reauthenticate(ctx context.Context) error
}
