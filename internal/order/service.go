package order

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	errors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/events"
	"github.com/frahmantamala/order-management/internal/inventory"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
)

// Service handles the order lifecycle: pending order creation, payment
// reconciliation, status transitions and cancellation.
type Service struct {
	repo       Repository
	catalog    Catalog
	gateway    PaymentGateway
	identifier IdentifierGenerator
	invoices   InvoiceGenerator
	eventBus   *events.EventBus
	pendingTTL time.Duration
	logger     *slog.Logger
}

func NewService(
	repo Repository,
	catalog Catalog,
	gateway PaymentGateway,
	identifier IdentifierGenerator,
	invoices InvoiceGenerator,
	eventBus *events.EventBus,
	pendingTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		catalog:    catalog,
		gateway:    gateway,
		identifier: identifier,
		invoices:   invoices,
		eventBus:   eventBus,
		pendingTTL: pendingTTL,
		logger:     logger,
	}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// CreateOrder validates the cart, prices it against the live catalog,
// opens a payment session and persists the pending order. Nothing is
// persisted when the gateway is unreachable, so clients can simply retry.
func (s *Service) CreateOrder(ctx context.Context, userID int64, dto CreateOrderDTO) (*CreateOrderResponse, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("order validation failed", "error", err, "user_id", userID)
		return nil, err
	}

	ids := make([]int64, 0, len(dto.Items))
	demands := make([]inventory.Demand, 0, len(dto.Items))
	for _, item := range dto.Items {
		ids = append(ids, item.ProductID)
		demands = append(demands, inventory.Demand{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	products, err := s.catalog.Products(ids)
	if err != nil {
		s.logger.Error("product lookup failed", "error", err, "user_id", userID)
		return nil, err
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, errors.NewValidationError("unknown or inactive product in cart", errors.ErrCodeUnknownProduct)
		}
	}

	if shortfalls := s.catalog.CheckAvailability(demands, products); len(shortfalls) > 0 {
		return nil, errors.NewInsufficientStockError(shortfalls)
	}

	// Prices and names are snapshotted now; later catalog edits must not
	// change what the buyer agreed to pay.
	snapshot := make([]ordermodel.PendingItem, 0, len(dto.Items))
	var subtotal float64
	for _, item := range dto.Items {
		p := products[item.ProductID]
		lineTotal := roundMoney(p.Price * float64(item.Quantity))
		snapshot = append(snapshot, ordermodel.PendingItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
			LineTotal:   lineTotal,
		})
		subtotal += lineTotal
	}
	subtotal = roundMoney(subtotal)
	total := subtotal

	reference, err := s.identifier.PaymentReference()
	if err != nil {
		return nil, errors.NewInternalError("generate payment reference", err)
	}

	checkoutURL, err := s.gateway.InitializeSession(ctx, reference, total)
	if err != nil {
		s.logger.Error("gateway session init failed", "error", err, "reference", reference)
		return nil, errors.NewPaymentGatewayUnavailableError(err)
	}

	itemsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.NewInternalError("marshal items snapshot", err)
	}
	deliveryJSON, err := json.Marshal(dto.Delivery)
	if err != nil {
		return nil, errors.NewInternalError("marshal delivery info", err)
	}

	pending := &ordermodel.PendingOrder{
		UserID:           userID,
		PaymentReference: reference,
		CheckoutURL:      checkoutURL,
		ItemsSnapshot:    itemsJSON,
		DeliveryInfo:     deliveryJSON,
		Subtotal:         subtotal,
		Total:            total,
		Status:           ordermodel.PendingStatusInitialized,
		ExpiresAt:        time.Now().Add(s.pendingTTL),
	}
	if err := s.repo.CreatePending(pending); err != nil {
		s.logger.Error("persist pending order failed", "error", err, "reference", reference)
		return nil, errors.NewInternalError("persist pending order", err)
	}
	if err := s.repo.MarkPendingStatus(pending.ID, ordermodel.PendingStatusPending); err != nil {
		s.logger.Error("mark pending failed", "error", err, "reference", reference)
		return nil, errors.NewInternalError("mark pending order", err)
	}

	s.appendTransaction(&ordermodel.PaymentTransaction{
		PaymentReference: reference,
		Kind:             ordermodel.TransactionKindInitialize,
		GatewayStatus:    string(paymentgateway.StatusPending),
		Amount:           total,
	})

	s.logger.Info("pending order created",
		"user_id", userID,
		"reference", reference,
		"total", total,
		"expires_at", pending.ExpiresAt)

	return &CreateOrderResponse{
		PaymentReference: reference,
		CheckoutURL:      checkoutURL,
		Total:            total,
		ExpiresAt:        pending.ExpiresAt,
	}, nil
}

// VerifyPayment is the client-driven reconciliation path. The caller must
// own the pending order.
func (s *Service) VerifyPayment(ctx context.Context, userID int64, dto VerifyPaymentDTO) (*OrderView, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPendingByReference(dto.Reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPendingOrderNotFound
		}
		return nil, errors.NewInternalError("lookup pending order", err)
	}
	if pending.UserID != userID {
		return nil, errors.ErrUnauthorizedAccess
	}

	return s.Reconcile(ctx, dto.Reference, TriggerVerify)
}

// PaymentStatus reports the gateway's current view of a payment session
// without mutating order state. The caller must own the pending order.
func (s *Service) PaymentStatus(ctx context.Context, userID int64, reference string) (*PaymentStatusView, error) {
	pending, err := s.repo.GetPendingByReference(reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPendingOrderNotFound
		}
		return nil, errors.NewInternalError("lookup pending order", err)
	}
	if pending.UserID != userID {
		return nil, errors.ErrUnauthorizedAccess
	}

	result, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.logger.Error("gateway verify failed", "error", err, "reference", reference)
		return nil, errors.NewPaymentGatewayUnavailableError(err)
	}

	s.appendTransaction(&ordermodel.PaymentTransaction{
		PaymentReference: reference,
		Kind:             ordermodel.TransactionKindVerify,
		GatewayStatus:    string(result.Status),
		Amount:           result.Amount,
		RawResponse:      result.RawResponse,
	})

	return &PaymentStatusView{
		Reference: reference,
		Status:    string(result.Status),
		Amount:    result.Amount,
		PaidAt:    result.PaidAt,
	}, nil
}

// Reconcile drives a payment reference to its settled outcome. It is
// idempotent: terminal pending orders short-circuit to the existing result,
// and the unique payment_reference constraint on orders arbitrates
// concurrent callers so at most one confirmed order exists per reference.
func (s *Service) Reconcile(ctx context.Context, reference, trigger string) (*OrderView, error) {
	pending, err := s.repo.GetPendingByReference(reference)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPendingOrderNotFound
		}
		return nil, errors.NewInternalError("lookup pending order", err)
	}

	if pending.IsTerminal() {
		return s.terminalOutcome(pending)
	}

	result, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		s.logger.Error("gateway verify failed", "error", err, "reference", reference, "trigger", trigger)
		return nil, errors.NewPaymentGatewayUnavailableError(err)
	}

	s.appendTransaction(&ordermodel.PaymentTransaction{
		PaymentReference: reference,
		Kind:             ordermodel.TransactionKindVerify,
		GatewayStatus:    string(result.Status),
		Amount:           result.Amount,
		RawResponse:      result.RawResponse,
	})

	switch result.Status {
	case paymentgateway.StatusPending:
		return nil, errors.ErrPaymentNotConfirmed
	case paymentgateway.StatusFailed:
		if err := s.repo.MarkPendingStatus(pending.ID, ordermodel.PendingStatusFailed); err != nil {
			return nil, errors.NewInternalError("mark pending failed", err)
		}
		s.eventBus.Publish(ctx, events.NewOrderPaymentFailedEvent(reference, pending.UserID, pending.Total, "gateway reported failure"))
		return nil, errors.ErrPaymentFailed
	case paymentgateway.StatusSucceeded:
		return s.confirm(ctx, pending, result, trigger)
	default:
		return nil, errors.NewInternalError("unexpected gateway status "+string(result.Status), nil)
	}
}

// confirm settles a gateway-succeeded payment into a confirmed order.
func (s *Service) confirm(ctx context.Context, pending *ordermodel.PendingOrder, result *paymentgateway.VerifyResult, trigger string) (*OrderView, error) {
	// Money moved but for a different amount than agreed: do not fulfill,
	// queue for manual refund instead.
	if roundMoney(result.Amount) != roundMoney(pending.Total) {
		s.logger.Error("amount mismatch on settled payment",
			"reference", pending.PaymentReference,
			"expected", pending.Total,
			"settled", result.Amount)
		if err := s.repo.MarkPendingStatus(pending.ID, ordermodel.PendingStatusFailed); err != nil {
			return nil, errors.NewInternalError("mark pending failed", err)
		}
		details, _ := json.Marshal(map[string]float64{"expected": pending.Total, "settled": result.Amount})
		s.appendReview(&ordermodel.PaymentReview{
			PaymentReference: pending.PaymentReference,
			UserID:           pending.UserID,
			Amount:           result.Amount,
			Reason:           ordermodel.ReviewReasonAmountMismatch,
			Details:          details,
		})
		return nil, errors.ErrPaymentFailed
	}

	var snapshot []ordermodel.PendingItem
	if err := json.Unmarshal(pending.ItemsSnapshot, &snapshot); err != nil {
		return nil, errors.NewInternalError("decode items snapshot", err)
	}

	var created *ordermodel.Order
	var createdItems []*ordermodel.OrderItem

	// Order code and invoice number draws are short enough that a handful
	// of collision retries always clears them.
	backoff := retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		orderCode, err := s.identifier.OrderCode()
		if err != nil {
			return err
		}
		invoiceNumber, err := s.identifier.InvoiceNumber()
		if err != nil {
			return err
		}

		o := &ordermodel.Order{
			OrderCode:        orderCode,
			InvoiceNumber:    invoiceNumber,
			PaymentReference: pending.PaymentReference,
			UserID:           pending.UserID,
			Status:           ordermodel.StatusPending,
			PaymentStatus:    ordermodel.PaymentStatusPaid,
			Subtotal:         pending.Subtotal,
			Discount:         pending.Discount,
			CreditApplied:    pending.CreditApplied,
			Total:            pending.Total,
			DeliveryInfo:     pending.DeliveryInfo,
			PaidAt:           result.PaidAt,
		}
		items := make([]*ordermodel.OrderItem, 0, len(snapshot))
		for _, line := range snapshot {
			items = append(items, &ordermodel.OrderItem{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				UnitPrice:   line.UnitPrice,
				Quantity:    line.Quantity,
				LineTotal:   line.LineTotal,
			})
		}

		if err := s.repo.CreateConfirmedOrder(pending, o, items); err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				// A racing reconciliation may already hold this reference;
				// otherwise the collision is on order_code or invoice_number
				// and fresh identifiers will clear it.
				if existing, lookupErr := s.repo.GetOrderByReference(pending.PaymentReference); lookupErr == nil {
					created = existing
					createdItems, _ = s.repo.GetOrderItems(existing.ID)
					return nil
				}
				return retry.RetryableError(err)
			}
			return err
		}
		created = o
		createdItems = items
		return nil
	})
	if err != nil {
		var conflict *StockConflictError
		if stderrors.As(err, &conflict) {
			// Payment settled but the goods are gone: fail the pending order
			// and queue the reference for manual refund.
			if markErr := s.repo.MarkPendingStatus(pending.ID, ordermodel.PendingStatusFailed); markErr != nil {
				return nil, errors.NewInternalError("mark pending failed", markErr)
			}
			details, _ := json.Marshal(conflict.Items)
			s.appendReview(&ordermodel.PaymentReview{
				PaymentReference: pending.PaymentReference,
				UserID:           pending.UserID,
				Amount:           result.Amount,
				Reason:           ordermodel.ReviewReasonStockExhausted,
				Details:          details,
			})
			return nil, errors.NewStockExhaustedAfterPaymentError(conflict.Items)
		}
		return nil, errors.NewInternalError("confirm order", err)
	}

	s.eventBus.Publish(ctx, events.NewOrderConfirmedEvent(
		created.ID, created.OrderCode, created.InvoiceNumber,
		created.PaymentReference, created.UserID, created.Total))

	invoicePending := s.attachInvoice(ctx, created, createdItems)

	s.logger.Info("order confirmed",
		"order_id", created.ID,
		"order_code", created.OrderCode,
		"reference", created.PaymentReference,
		"trigger", trigger)

	return ToOrderView(created, createdItems, invoicePending), nil
}

// attachInvoice runs the invoice pipeline and saves the artifact URLs.
// Invoice failure degrades the response, never the confirmation: the order
// stands and the invoice can be regenerated later. Returns true while the
// invoice is still outstanding.
func (s *Service) attachInvoice(ctx context.Context, o *ordermodel.Order, items []*ordermodel.OrderItem) bool {
	if o.InvoiceDocURL != nil {
		return false
	}

	docURL, imageURL, err := s.invoices.Generate(ctx, o, items)
	if err != nil {
		s.logger.Error("invoice generation failed", "error", err, "order_id", o.ID)
		return true
	}
	if err := s.repo.UpdateInvoiceURLs(o.ID, docURL, imageURL); err != nil {
		s.logger.Error("persist invoice urls failed", "error", err, "order_id", o.ID)
		return true
	}
	o.InvoiceDocURL = docURL
	o.InvoiceImageURL = imageURL
	return false
}

// terminalOutcome maps an already-settled pending order to its result
// without touching the gateway.
func (s *Service) terminalOutcome(pending *ordermodel.PendingOrder) (*OrderView, error) {
	switch pending.Status {
	case ordermodel.PendingStatusSuccess:
		existing, err := s.repo.GetOrderByReference(pending.PaymentReference)
		if err != nil {
			return nil, errors.NewInternalError("lookup confirmed order", err)
		}
		items, err := s.repo.GetOrderItems(existing.ID)
		if err != nil {
			return nil, errors.NewInternalError("lookup order items", err)
		}
		return ToOrderView(existing, items, existing.InvoiceDocURL == nil), nil
	case ordermodel.PendingStatusFailed:
		return nil, errors.ErrPaymentFailed
	default:
		// cancelled or abandoned
		return nil, errors.ErrPendingOrderNotFound
	}
}

// GetOrder returns a single order with its items. Owners only, unless the
// caller holds the operator permission (enforced at the handler).
func (s *Service) GetOrder(ctx context.Context, userID int64, orderID int64, operator bool) (*OrderView, error) {
	o, err := s.repo.GetOrderByID(orderID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, errors.NewInternalError("lookup order", err)
	}
	if !operator && o.UserID != userID {
		return nil, errors.ErrUnauthorizedAccess
	}
	items, err := s.repo.GetOrderItems(o.ID)
	if err != nil {
		return nil, errors.NewInternalError("lookup order items", err)
	}
	return ToOrderView(o, items, false), nil
}

// ListOrders returns the caller's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64, limit, offset int) ([]*OrderView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	orders, err := s.repo.GetOrdersByUserID(userID, limit, offset)
	if err != nil {
		return nil, errors.NewInternalError("list orders", err)
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, ToOrderView(o, nil, false))
	}
	return views, nil
}

func (s *Service) appendTransaction(txn *ordermodel.PaymentTransaction) {
	if err := s.repo.AppendTransaction(txn); err != nil {
		s.logger.Error("append payment transaction failed",
			"error", err,
			"reference", txn.PaymentReference,
			"kind", txn.Kind)
	}
}

func (s *Service) appendReview(review *ordermodel.PaymentReview) {
	if err := s.repo.AppendReview(review); err != nil {
		s.logger.Error("append payment review failed",
			"error", err,
			"reference", review.PaymentReference,
			"reason", review.Reason)
	}
}
