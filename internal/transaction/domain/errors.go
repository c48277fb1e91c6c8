package domain

import "errors"

var (
	ErrNotFound         = errors.New("transaction_not_found")
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidOwner     = errors.New("invalid_owner")
)
