package order

import (
	"time"

	errors "github.com/frahmantamala/order-management/internal"
	"github.com/frahmantamala/order-management/internal/core/common/validation"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
)

// CartItemDTO is one requested line in an incoming cart.
type CartItemDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// DeliveryInfoDTO carries the delivery destination data snapshotted onto the
// order.
type DeliveryInfoDTO struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	AddressLine   string `json:"address_line"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
}

// CreateOrderDTO is the POST /orders body. Any client-supplied total is
// ignored; totals are always recomputed server-side.
type CreateOrderDTO struct {
	Items    []CartItemDTO   `json:"items"`
	Delivery DeliveryInfoDTO `json:"delivery"`
}

func (d *CreateOrderDTO) Validate() error {
	if len(d.Items) == 0 {
		return errors.NewValidationError("cart must contain at least one item", errors.ErrCodeEmptyCart)
	}

	seen := make(map[int64]bool, len(d.Items))
	for _, item := range d.Items {
		validator := validation.NewValidator()
		validator.Field("product_id", item.ProductID).Required()
		if appErr := validator.Validate(); appErr != nil {
			return appErr
		}
		if appErr := validation.ValidateQuantity(item.Quantity); appErr != nil {
			return appErr
		}
		if seen[item.ProductID] {
			return errors.NewValidationError("duplicate product in cart", errors.ErrCodeValidationFailed)
		}
		seen[item.ProductID] = true
	}

	if appErr := validation.ValidateRecipientName(d.Delivery.RecipientName); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateAddressLine(d.Delivery.AddressLine); appErr != nil {
		return appErr
	}

	validator := validation.NewValidator()
	validator.Field("city", d.Delivery.City).Required().MaxLength(120)
	validator.Field("phone", d.Delivery.Phone).Required().MinLength(6).MaxLength(32)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	return nil
}

// CreateOrderResponse is all the client needs to proceed with checkout.
type CreateOrderResponse struct {
	PaymentReference string    `json:"payment_reference"`
	CheckoutURL      string    `json:"checkout_url"`
	Total            float64   `json:"total"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// VerifyPaymentDTO is the POST /orders/verify-payment body.
type VerifyPaymentDTO struct {
	Reference string `json:"reference"`
}

func (d *VerifyPaymentDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reference", d.Reference).Required().MaxLength(64)
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// CancelOrderDTO is the POST /orders/{id}/cancel body.
type CancelOrderDTO struct {
	Reason string `json:"reason,omitempty"`
}

// UpdateStatusDTO is the operator-only PUT /orders/{id}/status body.
type UpdateStatusDTO struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (d *UpdateStatusDTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("status", d.Status).Required()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	if !isKnownStatus(d.Status) {
		return errors.NewValidationError("unknown order status", errors.ErrCodeValidationFailed)
	}
	return nil
}

// OrderItemView mirrors the immutable line item snapshot.
type OrderItemView struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// OrderView is the external representation of a confirmed order.
type OrderView struct {
	ID              int64           `json:"id"`
	OrderCode       string          `json:"order_code"`
	InvoiceNumber   string          `json:"invoice_number"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Subtotal        float64         `json:"subtotal"`
	Discount        float64         `json:"discount"`
	CreditApplied   float64         `json:"credit_applied"`
	Total           float64         `json:"total"`
	Items           []OrderItemView `json:"items,omitempty"`
	InvoiceDocURL   *string         `json:"invoice_doc_url,omitempty"`
	InvoiceImageURL *string         `json:"invoice_image_url,omitempty"`
	InvoicePending  bool            `json:"invoice_pending,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PaymentStatusView reports the gateway's view of a payment session.
type PaymentStatusView struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    float64    `json:"amount"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func ToOrderView(o *ordermodel.Order, items []*ordermodel.OrderItem, invoicePending bool) *OrderView {
	view := &OrderView{
		ID:              o.ID,
		OrderCode:       o.OrderCode,
		InvoiceNumber:   o.InvoiceNumber,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		CreditApplied:   o.CreditApplied,
		Total:           o.Total,
		InvoiceDocURL:   o.InvoiceDocURL,
		InvoiceImageURL: o.InvoiceImageURL,
		InvoicePending:  invoicePending,
		PaidAt:          o.PaidAt,
		CreatedAt:       o.CreatedAt,
	}
	for _, item := range items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal,
		})
	}
	return view
}
