package product

import "time"

// Product carries the ledger-relevant slice of the catalog entity: price for
// server-side total recomputation and the stock column the ledger adjusts.
// Catalog CRUD itself lives outside this subsystem.
type Product struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Price     float64   `gorm:"column:price;not null"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }
