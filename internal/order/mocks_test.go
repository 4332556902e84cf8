package order_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
	"github.com/frahmantamala/order-management/internal/inventory"
	"github.com/frahmantamala/order-management/internal/order"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
)

// mockRepository keeps the full lifecycle state in memory. Confirmation
// mirrors the real transaction semantics: stock decrements and the unique
// payment reference constraint are checked under one lock so concurrent
// confirmations race the way they would against the database.
type mockRepository struct {
	mu sync.Mutex

	pendings     map[string]*ordermodel.PendingOrder
	orders       map[int64]*ordermodel.Order
	ordersByRef  map[string]*ordermodel.Order
	items        map[int64][]*ordermodel.OrderItem
	products     map[int64]*product.Product
	transactions []*ordermodel.PaymentTransaction
	reviews      []*ordermodel.PaymentReview
	history      []*ordermodel.OrderStatusHistory

	nextPendingID int64
	nextOrderID   int64

	createPendingErr error
	confirmErr       error
	appendTxnErr     error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		pendings:      make(map[string]*ordermodel.PendingOrder),
		orders:        make(map[int64]*ordermodel.Order),
		ordersByRef:   make(map[string]*ordermodel.Order),
		items:         make(map[int64][]*ordermodel.OrderItem),
		products:      make(map[int64]*product.Product),
		nextPendingID: 1,
		nextOrderID:   1,
	}
}

func (m *mockRepository) addProduct(p *product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *mockRepository) stockOf(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

func (m *mockRepository) CreatePending(po *ordermodel.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createPendingErr != nil {
		return m.createPendingErr
	}
	po.ID = m.nextPendingID
	m.nextPendingID++
	po.CreatedAt = time.Now()
	m.pendings[po.PaymentReference] = po
	return nil
}

func (m *mockRepository) GetPendingByReference(reference string) (*ordermodel.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.pendings[reference]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *po
	return &copied, nil
}

func (m *mockRepository) MarkPendingStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, po := range m.pendings {
		if po.ID == id {
			po.Status = status
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockRepository) MarkPendingAbandoned(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var swept int64
	for _, po := range m.pendings {
		if !po.IsTerminal() && po.ExpiresAt.Before(cutoff) {
			po.Status = ordermodel.PendingStatusAbandoned
			swept++
		}
	}
	return swept, nil
}

func (m *mockRepository) GetOrderByID(id int64) (*ordermodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockRepository) GetOrderByReference(reference string) (*ordermodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.ordersByRef[reference]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockRepository) GetOrdersByUserID(userID int64, limit, offset int) ([]*ordermodel.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*ordermodel.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockRepository) GetOrderItems(orderID int64) ([]*ordermodel.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID], nil
}

func (m *mockRepository) CreateConfirmedOrder(po *ordermodel.PendingOrder, o *ordermodel.Order, items []*ordermodel.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}

	if _, exists := m.ordersByRef[o.PaymentReference]; exists {
		return gorm.ErrDuplicatedKey
	}
	for _, existing := range m.orders {
		if existing.OrderCode == o.OrderCode || existing.InvoiceNumber == o.InvoiceNumber {
			return gorm.ErrDuplicatedKey
		}
	}

	for _, item := range items {
		p := m.products[item.ProductID]
		if p == nil || p.Stock < item.Quantity {
			available := 0
			if p != nil {
				available = p.Stock
			}
			return &order.StockConflictError{Items: []apperrors.InsufficientStockItem{{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}}}
		}
	}
	for _, item := range items {
		m.products[item.ProductID].Stock -= item.Quantity
	}

	o.ID = m.nextOrderID
	m.nextOrderID++
	o.CreatedAt = time.Now()
	m.orders[o.ID] = o
	m.ordersByRef[o.PaymentReference] = o
	for _, item := range items {
		item.OrderID = o.ID
	}
	m.items[o.ID] = items

	if stored, ok := m.pendings[po.PaymentReference]; ok {
		stored.Status = ordermodel.PendingStatusSuccess
	}
	m.history = append(m.history, &ordermodel.OrderStatusHistory{
		OrderID:  o.ID,
		ToStatus: ordermodel.StatusPending,
		Actor:    "system:reconciliation",
	})
	return nil
}

func (m *mockRepository) TransitionStatus(o *ordermodel.Order, toStatus string, paymentStatus *string, history *ordermodel.OrderStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Status = toStatus
	if paymentStatus != nil {
		stored.PaymentStatus = *paymentStatus
	}
	o.Status = toStatus
	m.history = append(m.history, history)
	return nil
}

func (m *mockRepository) CancelOrder(o *ordermodel.Order, history *ordermodel.OrderStatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for _, item := range m.items[o.ID] {
		if p := m.products[item.ProductID]; p != nil {
			p.Stock += item.Quantity
		}
	}
	stored.Status = ordermodel.StatusCancelled
	stored.PaymentStatus = ordermodel.PaymentStatusCancelled
	o.Status = ordermodel.StatusCancelled
	o.PaymentStatus = ordermodel.PaymentStatusCancelled
	m.history = append(m.history, history)
	return nil
}

func (m *mockRepository) UpdateInvoiceURLs(orderID int64, docURL, imageURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	o.InvoiceDocURL = docURL
	o.InvoiceImageURL = imageURL
	return nil
}

func (m *mockRepository) AppendTransaction(txn *ordermodel.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendTxnErr != nil {
		return m.appendTxnErr
	}
	m.transactions = append(m.transactions, txn)
	return nil
}

func (m *mockRepository) AppendReview(review *ordermodel.PaymentReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, review)
	return nil
}

func (m *mockRepository) transactionCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, txn := range m.transactions {
		if txn.Kind == kind {
			count++
		}
	}
	return count
}

// mockCatalog serves availability checks from the same product map as the
// repository so checkout and confirmation observe consistent stock.
type mockCatalog struct {
	repo      *mockRepository
	lookupErr error
}

func (c *mockCatalog) Products(ids []int64) (map[int64]*product.Product, error) {
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	c.repo.mu.Lock()
	defer c.repo.mu.Unlock()
	result := make(map[int64]*product.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.repo.products[id]; ok && p.IsActive {
			copied := *p
			result[id] = &copied
		}
	}
	return result, nil
}

func (c *mockCatalog) CheckAvailability(demands []inventory.Demand, products map[int64]*product.Product) []apperrors.InsufficientStockItem {
	var shortfalls []apperrors.InsufficientStockItem
	for _, d := range demands {
		p, ok := products[d.ProductID]
		if !ok {
			continue
		}
		if p.Stock < d.Quantity {
			shortfalls = append(shortfalls, apperrors.InsufficientStockItem{
				ProductID: d.ProductID,
				Requested: d.Quantity,
				Available: p.Stock,
			})
		}
	}
	return shortfalls
}

// mockGateway scripts gateway responses per reference.
type mockGateway struct {
	mu sync.Mutex

	initErr     error
	checkoutURL string
	verifyErr   error
	results     map[string]*paymentgateway.VerifyResult
	verifyCalls int
	validSig    bool
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		checkoutURL: "https://gateway.example.com/checkout/session",
		results:     make(map[string]*paymentgateway.VerifyResult),
		validSig:    true,
	}
}

func (g *mockGateway) InitializeSession(ctx context.Context, reference string, amount float64) (string, error) {
	if g.initErr != nil {
		return "", g.initErr
	}
	return g.checkoutURL, nil
}

func (g *mockGateway) VerifyTransaction(ctx context.Context, reference string) (*paymentgateway.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if result, ok := g.results[reference]; ok {
		return result, nil
	}
	return &paymentgateway.VerifyResult{Status: paymentgateway.StatusPending}, nil
}

func (g *mockGateway) AuthenticateNotification(rawPayload []byte, signatureHeader string) bool {
	return g.validSig
}

func (g *mockGateway) settle(reference string, status paymentgateway.Status, amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	result := &paymentgateway.VerifyResult{Status: status, Amount: amount}
	if status == paymentgateway.StatusSucceeded {
		result.PaidAt = &now
	}
	g.results[reference] = result
}

// seqIdentifier issues deterministic identifiers. Tests rewind the counter
// to provoke collisions with draws already persisted.
type seqIdentifier struct {
	mu      sync.Mutex
	counter int
}

func (s *seqIdentifier) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

func (s *seqIdentifier) OrderCode() (string, error) {
	return fmt.Sprintf("ORD-TEST-%04d", s.next()), nil
}

func (s *seqIdentifier) InvoiceNumber() (string, error) {
	return fmt.Sprintf("%010d", s.next()), nil
}

func (s *seqIdentifier) PaymentReference() (string, error) {
	return fmt.Sprintf("pay-test%08d", s.next()), nil
}

// mockInvoices records generation calls; failure is switchable to exercise
// the degraded path.
type mockInvoices struct {
	mu          sync.Mutex
	generateErr error
	calls       int
}

func (m *mockInvoices) Generate(ctx context.Context, o *ordermodel.Order, items []*ordermodel.OrderItem) (*string, *string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.generateErr != nil {
		return nil, nil, m.generateErr
	}
	doc := fmt.Sprintf("https://storage.example.com/invoices/%s/invoice.pdf", o.InvoiceNumber)
	img := fmt.Sprintf("https://storage.example.com/invoices/%s/invoice.png", o.InvoiceNumber)
	return &doc, &img, nil
}
