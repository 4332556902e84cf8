package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidQuantity  ErrorCode = "INVALID_QUANTITY"
	ErrCodeInvalidAddress   ErrorCode = "INVALID_ADDRESS"
	ErrCodeEmptyCart        ErrorCode = "EMPTY_CART"
	ErrCodeUnknownProduct   ErrorCode = "UNKNOWN_PRODUCT"

	ErrCodeInsufficientStock         ErrorCode = "INSUFFICIENT_STOCK"
	ErrCodeStockExhaustedAfterPayment ErrorCode = "STOCK_EXHAUSTED_AFTER_PAYMENT"

	ErrCodePaymentGatewayUnavailable ErrorCode = "PAYMENT_GATEWAY_UNAVAILABLE"
	ErrCodePaymentNotConfirmed       ErrorCode = "PAYMENT_NOT_CONFIRMED"
	ErrCodePaymentFailed             ErrorCode = "PAYMENT_FAILED"

	ErrCodeOrderNotFound           ErrorCode = "ORDER_NOT_FOUND"
	ErrCodePendingOrderNotFound    ErrorCode = "PENDING_ORDER_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeUnauthorizedAccess      ErrorCode = "UNAUTHORIZED_ACCESS"

	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewExternalError covers failures of external collaborators (payment
// gateway, object storage) that are safe to retry.
func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

var (
	ErrOrderNotFound        = NewNotFoundError("Order not found", ErrCodeOrderNotFound)
	ErrPendingOrderNotFound = NewNotFoundError("Pending order not found", ErrCodePendingOrderNotFound)
	ErrUnauthorizedAccess   = NewForbiddenError("unauthorized access to order", ErrCodeUnauthorizedAccess)

	// ErrPaymentNotConfirmed is returned when verification runs before the
	// gateway reports success; the client should poll again.
	ErrPaymentNotConfirmed = NewConflictError("Payment not confirmed yet", ErrCodePaymentNotConfirmed)
	ErrPaymentFailed       = NewConflictError("Payment failed at the gateway", ErrCodePaymentFailed)

	ErrInvalidStatusTransition = NewValidationError("invalid order status transition", ErrCodeInvalidStatusTransition)

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

// InsufficientStockItem identifies one offending cart line in an
// INSUFFICIENT_STOCK error.
type InsufficientStockItem struct {
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func NewInsufficientStockError(items []InsufficientStockItem) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeInsufficientStock,
		Message:    "Insufficient stock for requested items",
		StatusCode: http.StatusConflict,
		Details:    items,
	}
}

// NewStockExhaustedAfterPaymentError marks the rare post-payment stock race.
// It is a distinct, alarm-worthy condition routed to the manual refund queue,
// never folded into the pre-check error path.
func NewStockExhaustedAfterPaymentError(items []InsufficientStockItem) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeStockExhaustedAfterPayment,
		Message:    "Stock exhausted after payment was taken; queued for manual refund",
		StatusCode: http.StatusConflict,
		Details:    items,
	}
}

func NewPaymentGatewayUnavailableError(cause error) *AppError {
	return NewExternalError("Payment gateway unavailable", ErrCodePaymentGatewayUnavailable, cause)
}

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
