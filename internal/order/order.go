package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	errors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
	"github.com/frahmantamala/order-management/internal/inventory"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
)

// Reconciliation trigger sources, recorded in transaction audit rows and
// status history actors.
const (
	TriggerVerify  = "verify"
	TriggerWebhook = "webhook"
)

// Repository defines the data access methods for the order lifecycle.
type Repository interface {
	CreatePending(po *ordermodel.PendingOrder) error
	GetPendingByReference(reference string) (*ordermodel.PendingOrder, error)
	MarkPendingStatus(id int64, status string) error
	MarkPendingAbandoned(cutoff time.Time) (int64, error)

	GetOrderByID(id int64) (*ordermodel.Order, error)
	GetOrderByReference(reference string) (*ordermodel.Order, error)
	GetOrdersByUserID(userID int64, limit, offset int) ([]*ordermodel.Order, error)
	GetOrderItems(orderID int64) ([]*ordermodel.OrderItem, error)

	// CreateConfirmedOrder runs the atomic confirmation transaction: stock
	// decrement for every line, order plus items insert, pending row marked
	// success, history row appended. A stock shortfall returns
	// *StockConflictError and leaves no partial state.
	CreateConfirmedOrder(po *ordermodel.PendingOrder, o *ordermodel.Order, items []*ordermodel.OrderItem) error

	// TransitionStatus updates order status (and optionally payment status)
	// and appends the history row in one transaction.
	TransitionStatus(o *ordermodel.Order, toStatus string, paymentStatus *string, history *ordermodel.OrderStatusHistory) error

	// CancelOrder transitions to cancelled, restores stock for every line
	// and appends the history row in one transaction.
	CancelOrder(o *ordermodel.Order, history *ordermodel.OrderStatusHistory) error

	UpdateInvoiceURLs(orderID int64, docURL, imageURL *string) error

	AppendTransaction(txn *ordermodel.PaymentTransaction) error
	AppendReview(review *ordermodel.PaymentReview) error
}

// PaymentGateway defines the gateway operations the service depends on.
type PaymentGateway interface {
	InitializeSession(ctx context.Context, reference string, amount float64) (string, error)
	VerifyTransaction(ctx context.Context, reference string) (*paymentgateway.VerifyResult, error)
	AuthenticateNotification(rawPayload []byte, signatureHeader string) bool
}

// IdentifierGenerator issues the three identifier families.
type IdentifierGenerator interface {
	OrderCode() (string, error)
	InvoiceNumber() (string, error)
	PaymentReference() (string, error)
}

// Catalog exposes the product lookups and availability pre-check used at
// order creation.
type Catalog interface {
	Products(ids []int64) (map[int64]*product.Product, error)
	CheckAvailability(demands []inventory.Demand, products map[int64]*product.Product) []errors.InsufficientStockItem
}

// InvoiceGenerator produces invoice artifacts for a confirmed order.
type InvoiceGenerator interface {
	Generate(ctx context.Context, o *ordermodel.Order, items []*ordermodel.OrderItem) (docURL, imageURL *string, err error)
}

// StockConflictError reports which lines could not be decremented during
// order confirmation.
type StockConflictError struct {
	Items []errors.InsufficientStockItem
}

func (e *StockConflictError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("product %d: requested %d, available %d", item.ProductID, item.Requested, item.Available))
	}
	return "stock conflict: " + strings.Join(parts, "; ")
}

func isKnownStatus(status string) bool {
	switch status {
	case ordermodel.StatusPending, ordermodel.StatusProcessing, ordermodel.StatusShipped,
		ordermodel.StatusDelivered, ordermodel.StatusCancelled, ordermodel.StatusFailed:
		return true
	}
	return false
}
