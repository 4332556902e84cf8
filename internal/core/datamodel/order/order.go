package order

import (
	"encoding/json"
	"time"
)

// PendingOrder lifecycle statuses.
const (
	PendingStatusInitialized = "initialized"
	PendingStatusPending     = "pending"
	PendingStatusSuccess     = "success"
	PendingStatusFailed      = "failed"
	PendingStatusCancelled   = "cancelled"
	PendingStatusAbandoned   = "abandoned"
)

// Order statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
	StatusFailed     = "failed"
)

// Payment statuses on the confirmed order.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"
)

// PendingOrder is a cart awaiting payment confirmation. Rows are never
// deleted, only status-terminated, to preserve audit history.
type PendingOrder struct {
	ID               int64           `gorm:"primaryKey"`
	UserID           int64           `gorm:"column:user_id;not null"`
	PaymentReference string          `gorm:"column:payment_reference;not null;uniqueIndex"`
	CheckoutURL      string          `gorm:"column:checkout_url"`
	ItemsSnapshot    json.RawMessage `gorm:"column:items_snapshot;type:jsonb"`
	DeliveryInfo     json.RawMessage `gorm:"column:delivery_info;type:jsonb"`
	Subtotal         float64         `gorm:"column:subtotal;not null"`
	Discount         float64         `gorm:"column:discount"`
	CreditApplied    float64         `gorm:"column:credit_applied"`
	Total            float64         `gorm:"column:total;not null"`
	Status           string          `gorm:"column:status;default:initialized"`
	ExpiresAt        time.Time       `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingOrder) TableName() string { return "pending_orders" }

// IsTerminal reports whether no further payment reconciliation applies.
func (p *PendingOrder) IsTerminal() bool {
	switch p.Status {
	case PendingStatusSuccess, PendingStatusFailed, PendingStatusCancelled, PendingStatusAbandoned:
		return true
	}
	return false
}

// PendingItem is one snapshotted cart line inside PendingOrder.ItemsSnapshot.
type PendingItem struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// Order is the confirmed, durable record. Created exclusively by the
// reconciliation engine; at most one per payment reference.
type Order struct {
	ID               int64           `gorm:"primaryKey"`
	OrderCode        string          `gorm:"column:order_code;not null;uniqueIndex"`
	InvoiceNumber    string          `gorm:"column:invoice_number;not null;uniqueIndex"`
	PaymentReference string          `gorm:"column:payment_reference;not null;uniqueIndex"`
	UserID           int64           `gorm:"column:user_id;not null"`
	Status           string          `gorm:"column:status;default:pending"`
	PaymentStatus    string          `gorm:"column:payment_status;default:pending"`
	Subtotal         float64         `gorm:"column:subtotal;not null"`
	Discount         float64         `gorm:"column:discount"`
	CreditApplied    float64         `gorm:"column:credit_applied"`
	Total            float64         `gorm:"column:total;not null"`
	DeliveryInfo     json.RawMessage `gorm:"column:delivery_info;type:jsonb"`
	InvoiceDocURL    *string         `gorm:"column:invoice_doc_url"`
	InvoiceImageURL  *string         `gorm:"column:invoice_image_url"`
	PaidAt           *time.Time      `gorm:"column:paid_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// IsTerminal reports whether the order reached a final status.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusDelivered, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// OrderItem is a line item snapshot, decoupled from the live catalog.
// Immutable after creation.
type OrderItem struct {
	ID          int64     `gorm:"primaryKey"`
	OrderID     int64     `gorm:"column:order_id;not null;index"`
	ProductID   int64     `gorm:"column:product_id;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	UnitPrice   float64   `gorm:"column:unit_price;not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	LineTotal   float64   `gorm:"column:line_total;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

// PaymentTransaction kinds.
const (
	TransactionKindInitialize   = "initialize"
	TransactionKindVerify       = "verify"
	TransactionKindNotification = "notification"
)

// PaymentTransaction is an append-only record of every gateway interaction,
// kept for audit and dispute resolution. Never updated.
type PaymentTransaction struct {
	ID               int64           `gorm:"primaryKey"`
	PaymentReference string          `gorm:"column:payment_reference;not null;index"`
	Kind             string          `gorm:"column:kind;not null"`
	GatewayStatus    string          `gorm:"column:gateway_status"`
	Amount           float64         `gorm:"column:amount"`
	RawResponse      json.RawMessage `gorm:"column:raw_response;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// OrderStatusHistory is the append-only audit trail of status transitions.
type OrderStatusHistory struct {
	ID         int64     `gorm:"primaryKey"`
	OrderID    int64     `gorm:"column:order_id;not null;index"`
	FromStatus string    `gorm:"column:from_status"`
	ToStatus   string    `gorm:"column:to_status;not null"`
	Actor      string    `gorm:"column:actor;not null"`
	Reason     *string   `gorm:"column:reason"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

// PaymentReview reasons.
const (
	ReviewReasonStockExhausted = "stock_exhausted_after_payment"
	ReviewReasonAmountMismatch = "amount_mismatch"
)

// PaymentReview is the manual refund queue: money moved but the order could
// not be fulfilled as agreed. Append-only; operators resolve rows out of band.
type PaymentReview struct {
	ID               int64           `gorm:"primaryKey"`
	PaymentReference string          `gorm:"column:payment_reference;not null;index"`
	UserID           int64           `gorm:"column:user_id;not null"`
	Amount           float64         `gorm:"column:amount;not null"`
	Reason           string          `gorm:"column:reason;not null"`
	Details          json.RawMessage `gorm:"column:details;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentReview) TableName() string { return "payment_reviews" }
