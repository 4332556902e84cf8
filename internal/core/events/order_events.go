package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderConfirmed     = "order.confirmed"
	EventTypeOrderPaymentFailed = "order.payment_failed"
	EventTypeOrderCancelled     = "order.cancelled"
	EventTypeOrderStatusChanged = "order.status_changed"
)

type OrderConfirmedEvent struct {
	BaseEvent
	OrderID          int64   `json:"order_id"`
	OrderCode        string  `json:"order_code"`
	InvoiceNumber    string  `json:"invoice_number"`
	PaymentReference string  `json:"payment_reference"`
	UserID           int64   `json:"user_id"`
	Total            float64 `json:"total"`
}

func NewOrderConfirmedEvent(orderID int64, orderCode, invoiceNumber, paymentReference string, userID int64, total float64) *OrderConfirmedEvent {
	return &OrderConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":          orderID,
				"order_code":        orderCode,
				"invoice_number":    invoiceNumber,
				"payment_reference": paymentReference,
				"user_id":           userID,
				"total":             total,
			},
		},
		OrderID:          orderID,
		OrderCode:        orderCode,
		InvoiceNumber:    invoiceNumber,
		PaymentReference: paymentReference,
		UserID:           userID,
		Total:            total,
	}
}

type OrderPaymentFailedEvent struct {
	BaseEvent
	PaymentReference string  `json:"payment_reference"`
	UserID           int64   `json:"user_id"`
	Amount           float64 `json:"amount"`
	FailureReason    string  `json:"failure_reason"`
}

func NewOrderPaymentFailedEvent(paymentReference string, userID int64, amount float64, failureReason string) *OrderPaymentFailedEvent {
	return &OrderPaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderPaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_reference": paymentReference,
				"user_id":           userID,
				"amount":            amount,
				"failure_reason":    failureReason,
			},
		},
		PaymentReference: paymentReference,
		UserID:           userID,
		Amount:           amount,
		FailureReason:    failureReason,
	}
}

type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	OrderCode  string `json:"order_code"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Actor      string `json:"actor"`
}

func NewOrderStatusChangedEvent(orderID int64, orderCode, fromStatus, toStatus, actor string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":    orderID,
				"order_code":  orderCode,
				"from_status": fromStatus,
				"to_status":   toStatus,
				"actor":       actor,
			},
		},
		OrderID:    orderID,
		OrderCode:  orderCode,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Actor:      actor,
	}
}

type OrderCancelledEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	OrderCode string `json:"order_code"`
	Actor     string `json:"actor"`
	Reason    string `json:"reason"`
}

func NewOrderCancelledEvent(orderID int64, orderCode, actor, reason string) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderCancelled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"order_id":   orderID,
				"order_code": orderCode,
				"actor":      actor,
				"reason":     reason,
			},
		},
		OrderID:   orderID,
		OrderCode: orderCode,
		Actor:     actor,
		Reason:    reason,
	}
}
