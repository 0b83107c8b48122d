package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrGateway           = errors.New("payment gateway error")
	// ErrRefundRequired means the gateway confirmed a payment but stock ran
	// out before settlement. The money was taken; an operator must refund.
	ErrRefundRequired = errors.New("payment captured but stock insufficient, refund required")
)
