package postgres

import (
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
	"github.com/frahmantamala/order-management/internal/inventory"
	"gorm.io/gorm"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetByIDs(ids []int64) ([]*product.Product, error) {
	var products []*product.Product
	err := r.db.Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *InventoryRepository) Decrement(productID int64, quantity int) error {
	return DecrementStock(r.db, productID, quantity)
}

func (r *InventoryRepository) Increment(productID int64, quantity int) error {
	return IncrementStock(r.db, productID, quantity)
}

// DecrementStock runs the atomic conditional decrement. The stock >= guard in
// the WHERE clause is what prevents oversell under concurrent finalize calls;
// zero rows affected means the stock moved under us.
func DecrementStock(db *gorm.DB, productID int64, quantity int) error {
	res := db.Model(&product.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return inventory.ErrStockConflict
	}
	return nil
}

// IncrementStock restores quantity, used by order cancellation.
func IncrementStock(db *gorm.DB, productID int64, quantity int) error {
	return db.Model(&product.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity)).Error
}
