package common

import "errors"

// Error codes shared across handlers. Domain packages expose sentinel
// errors; handlers translate them into these codes.
const (
	CodeValidation        = "VALIDATION"
	CodeEmptyCart         = "EMPTY_CART"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeItemUnavailable   = "ITEM_UNAVAILABLE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInsufficientPay   = "INSUFFICIENT_PAYMENT"
	CodeCouponNotFound    = "COUPON_NOT_FOUND"
	CodeCouponInactive    = "COUPON_INACTIVE"
	CodeCouponExpired     = "COUPON_EXPIRED"
	CodeCouponExhausted   = "COUPON_EXHAUSTED"
	CodeCouponMinimum     = "COUPON_MINIMUM_NOT_MET"
	CodeAlreadyReturned   = "ALREADY_RETURNED"
	CodeDuplicate         = "DUPLICATE"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeInternal          = "INTERNAL"
)

// AppError carries an error code and HTTP status alongside the cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError extracts an AppError from the chain if present.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
