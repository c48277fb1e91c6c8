package domain

import "errors"

var (
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrInvalidOwner      = errors.New("invalid_wallet_owner")
	ErrInvalidAmount     = errors.New("invalid_ledger_amount")
	ErrInvalidReference  = errors.New("invalid_ledger_reference")
	ErrInsufficientFunds = errors.New("insufficient_funds")
)
