package domain

import "errors"

// Errores del queue. Todas las operaciones devuelven uno de estos (envuelto con %w)
// y nunca dejan estado parcial cuando fallan.
var (
	ErrNotInitialized         = errors.New("liquidation queue not initialized")
	ErrAlreadyInitialized     = errors.New("liquidation queue already initialized")
	ErrPremiumTooHigh         = errors.New("premium too high")
	ErrBidTooLow              = errors.New("bid too low")
	ErrBidNotFound            = errors.New("bid not found")
	ErrBidAlreadyFilled       = errors.New("bid already partially or fully filled")
	ErrTooSoon                = errors.New("activation delay not elapsed")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrOnlyQueue              = errors.New("only queue")
	ErrInsufficientSwapOutput = errors.New("insufficient swap output")
	ErrNoBalanceDue           = errors.New("no balance due")

	// Custody / swapper.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnsupportedRoute    = errors.New("unsupported swap route")
	ErrSwapperNotSet       = errors.New("swapper not set")

	ErrInvalidMeta    = errors.New("invalid queue meta")
	ErrAmountOverflow = errors.New("amount overflow")
)
