package inventory

import (
	"errors"
	"log/slog"

	apperrors "github.com/frahmantamala/order-management/internal"
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
)

// ErrStockConflict is returned when a conditional decrement finds less stock
// than requested. Callers decide whether that is a pre-check rejection or the
// alarm-worthy post-payment variant.
var ErrStockConflict = errors.New("inventory: insufficient stock")

// Demand is one requested product/quantity pair.
type Demand struct {
	ProductID int64
	Quantity  int
}

type Repository interface {
	GetByIDs(ids []int64) ([]*product.Product, error)
	// Decrement atomically subtracts quantity where stock >= quantity,
	// returning ErrStockConflict otherwise. Never read-then-write.
	Decrement(productID int64, quantity int) error
	Increment(productID int64, quantity int) error
}

// Service is the stock-accounting abstraction over the product table.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Products loads the catalog rows for a cart, keyed by product ID. Inactive
// products are excluded so they cannot be ordered.
func (s *Service) Products(ids []int64) (map[int64]*product.Product, error) {
	rows, err := s.repo.GetByIDs(ids)
	if err != nil {
		s.logger.Error("failed to load products", "error", err, "product_ids", ids)
		return nil, err
	}

	products := make(map[int64]*product.Product, len(rows))
	for _, p := range rows {
		if p.IsActive {
			products[p.ID] = p
		}
	}
	return products, nil
}

// CheckAvailability reports every demand the current stock cannot satisfy.
// It only checks; nothing is reserved, since holding a reservation across an
// unbounded external payment flow is avoided in favor of a second check at
// finalization.
func (s *Service) CheckAvailability(demands []Demand, products map[int64]*product.Product) []apperrors.InsufficientStockItem {
	var short []apperrors.InsufficientStockItem
	for _, d := range demands {
		p, ok := products[d.ProductID]
		if !ok {
			short = append(short, apperrors.InsufficientStockItem{
				ProductID: d.ProductID,
				Requested: d.Quantity,
				Available: 0,
			})
			continue
		}
		if p.Stock < d.Quantity {
			short = append(short, apperrors.InsufficientStockItem{
				ProductID: d.ProductID,
				Requested: d.Quantity,
				Available: p.Stock,
			})
		}
	}
	return short
}

// Restore puts cancelled quantities back on the shelf.
func (s *Service) Restore(productID int64, quantity int) error {
	if err := s.repo.Increment(productID, quantity); err != nil {
		s.logger.Error("failed to restore stock", "error", err, "product_id", productID, "quantity", quantity)
		return err
	}
	s.logger.Info("stock restored", "product_id", productID, "quantity", quantity)
	return nil
}
