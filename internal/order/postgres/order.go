package postgres

import (
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
	"github.com/frahmantamala/order-management/internal/inventory"
	inventorypg "github.com/frahmantamala/order-management/internal/inventory/postgres"
	"github.com/frahmantamala/order-management/internal/order"
)

// OrderRepository implements the order.Repository interface using GORM.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) order.Repository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) CreatePending(po *ordermodel.PendingOrder) error {
	return r.db.Create(po).Error
}

func (r *OrderRepository) GetPendingByReference(reference string) (*ordermodel.PendingOrder, error) {
	var po ordermodel.PendingOrder
	if err := r.db.Where("payment_reference = ?", reference).First(&po).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

func (r *OrderRepository) MarkPendingStatus(id int64, status string) error {
	return r.db.Model(&ordermodel.PendingOrder{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkPendingAbandoned expires stale pending orders in bulk. Only
// non-terminal rows qualify, so settled payments keep their outcome.
func (r *OrderRepository) MarkPendingAbandoned(cutoff time.Time) (int64, error) {
	result := r.db.Model(&ordermodel.PendingOrder{}).
		Where("status IN ?", []string{ordermodel.PendingStatusInitialized, ordermodel.PendingStatusPending}).
		Where("expires_at < ?", cutoff).
		Update("status", ordermodel.PendingStatusAbandoned)
	return result.RowsAffected, result.Error
}

func (r *OrderRepository) GetOrderByID(id int64) (*ordermodel.Order, error) {
	var o ordermodel.Order
	if err := r.db.Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetOrderByReference(reference string) (*ordermodel.Order, error) {
	var o ordermodel.Order
	if err := r.db.Where("payment_reference = ?", reference).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) GetOrdersByUserID(userID int64, limit, offset int) ([]*ordermodel.Order, error) {
	var orders []*ordermodel.Order
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) GetOrderItems(orderID int64) ([]*ordermodel.OrderItem, error) {
	var items []*ordermodel.OrderItem
	err := r.db.Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// CreateConfirmedOrder runs the confirmation transaction: conditional stock
// decrement per line, order and item inserts, pending row marked success and
// the first history row. Any failure rolls the whole thing back, including
// already-applied decrements. The unique index on orders.payment_reference
// makes concurrent confirmations of the same reference lose with
// gorm.ErrDuplicatedKey rather than double-fulfill.
func (r *OrderRepository) CreateConfirmedOrder(po *ordermodel.PendingOrder, o *ordermodel.Order, items []*ordermodel.OrderItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			if err := inventorypg.DecrementStock(tx, item.ProductID, item.Quantity); err != nil {
				if stderrors.Is(err, inventory.ErrStockConflict) {
					return &order.StockConflictError{
						Items: []errors.InsufficientStockItem{{
							ProductID: item.ProductID,
							Requested: item.Quantity,
							Available: currentStock(tx, item.ProductID),
						}},
					}
				}
				return err
			}
		}

		if err := tx.Create(o).Error; err != nil {
			return err
		}
		for _, item := range items {
			item.OrderID = o.ID
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&ordermodel.PendingOrder{}).
			Where("id = ?", po.ID).
			Update("status", ordermodel.PendingStatusSuccess).Error; err != nil {
			return err
		}

		history := &ordermodel.OrderStatusHistory{
			OrderID:  o.ID,
			ToStatus: ordermodel.StatusPending,
			Actor:    "system:reconciliation",
		}
		return tx.Create(history).Error
	})
}

func currentStock(tx *gorm.DB, productID int64) int {
	var p product.Product
	if err := tx.Where("id = ?", productID).First(&p).Error; err != nil {
		return 0
	}
	return p.Stock
}

func (r *OrderRepository) TransitionStatus(o *ordermodel.Order, toStatus string, paymentStatus *string, history *ordermodel.OrderStatusHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": toStatus}
		if paymentStatus != nil {
			updates["payment_status"] = *paymentStatus
		}
		if err := tx.Model(&ordermodel.Order{}).
			Where("id = ?", o.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		o.Status = toStatus
		if paymentStatus != nil {
			o.PaymentStatus = *paymentStatus
		}
		return nil
	})
}

// CancelOrder restores stock for every line and appends the history row in
// the same transaction as the status flip.
func (r *OrderRepository) CancelOrder(o *ordermodel.Order, history *ordermodel.OrderStatusHistory) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var items []*ordermodel.OrderItem
		if err := tx.Where("order_id = ?", o.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			if err := inventorypg.IncrementStock(tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := tx.Model(&ordermodel.Order{}).
			Where("id = ?", o.ID).
			Updates(map[string]interface{}{
				"status":         ordermodel.StatusCancelled,
				"payment_status": ordermodel.PaymentStatusCancelled,
			}).Error; err != nil {
			return err
		}
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		o.Status = ordermodel.StatusCancelled
		o.PaymentStatus = ordermodel.PaymentStatusCancelled
		return nil
	})
}

func (r *OrderRepository) UpdateInvoiceURLs(orderID int64, docURL, imageURL *string) error {
	return r.db.Model(&ordermodel.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"invoice_doc_url":   docURL,
			"invoice_image_url": imageURL,
		}).Error
}

func (r *OrderRepository) AppendTransaction(txn *ordermodel.PaymentTransaction) error {
	return r.db.Create(txn).Error
}

func (r *OrderRepository) AppendReview(review *ordermodel.PaymentReview) error {
	return r.db.Create(review).Error
}
