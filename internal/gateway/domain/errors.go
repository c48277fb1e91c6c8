package domain

import "errors"

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_adapter_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_not_handled")

	// ErrUnresolved means the gateway could not give a definitive answer
	// (timeout, 5xx, payment still in flight). Callers leave state unchanged.
	ErrUnresolved = errors.New("verification_unresolved")
)
