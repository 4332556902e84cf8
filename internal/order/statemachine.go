package order

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/events"
)

// allowedTransitions is the full order status machine. Delivered is
// terminal; cancellation is only reachable before shipment.
var allowedTransitions = map[string][]string{
	ordermodel.StatusPending:    {ordermodel.StatusProcessing, ordermodel.StatusCancelled, ordermodel.StatusFailed},
	ordermodel.StatusProcessing: {ordermodel.StatusShipped, ordermodel.StatusCancelled, ordermodel.StatusFailed},
	ordermodel.StatusShipped:    {ordermodel.StatusDelivered, ordermodel.StatusFailed},
	ordermodel.StatusDelivered:  {},
	ordermodel.StatusCancelled:  {},
	ordermodel.StatusFailed:     {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CancelOrder cancels an order on behalf of its owner. Only pending and
// processing orders can be cancelled; stock is restored and exactly one
// history row is appended, all in one transaction.
func (s *Service) CancelOrder(ctx context.Context, userID int64, orderID int64, dto CancelOrderDTO) (*OrderView, error) {
	o, err := s.repo.GetOrderByID(orderID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, errors.NewInternalError("lookup order", err)
	}
	if o.UserID != userID {
		return nil, errors.ErrUnauthorizedAccess
	}

	actor := fmt.Sprintf("user:%d", userID)
	return s.cancel(ctx, o, actor, dto.Reason)
}

func (s *Service) cancel(ctx context.Context, o *ordermodel.Order, actor, reason string) (*OrderView, error) {
	if !CanTransition(o.Status, ordermodel.StatusCancelled) {
		s.logger.Warn("cancel rejected",
			"order_id", o.ID,
			"status", o.Status,
			"actor", actor)
		return nil, errors.ErrInvalidStatusTransition
	}

	history := &ordermodel.OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: o.Status,
		ToStatus:   ordermodel.StatusCancelled,
		Actor:      actor,
	}
	if reason != "" {
		history.Reason = &reason
	}

	if err := s.repo.CancelOrder(o, history); err != nil {
		return nil, errors.NewInternalError("cancel order", err)
	}

	s.eventBus.Publish(ctx, events.NewOrderCancelledEvent(o.ID, o.OrderCode, actor, reason))

	items, err := s.repo.GetOrderItems(o.ID)
	if err != nil {
		return nil, errors.NewInternalError("lookup order items", err)
	}
	return ToOrderView(o, items, false), nil
}

// UpdateStatus is the operator path for moving an order through fulfillment.
// Cancellation through this path restores stock like owner cancellation.
func (s *Service) UpdateStatus(ctx context.Context, actor string, orderID int64, dto UpdateStatusDTO) (*OrderView, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	o, err := s.repo.GetOrderByID(orderID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, errors.NewInternalError("lookup order", err)
	}

	if dto.Status == ordermodel.StatusCancelled {
		return s.cancel(ctx, o, actor, dto.Reason)
	}

	if !CanTransition(o.Status, dto.Status) {
		s.logger.Warn("status transition rejected",
			"order_id", o.ID,
			"from", o.Status,
			"to", dto.Status,
			"actor", actor)
		return nil, errors.ErrInvalidStatusTransition
	}

	fromStatus := o.Status
	history := &ordermodel.OrderStatusHistory{
		OrderID:    o.ID,
		FromStatus: fromStatus,
		ToStatus:   dto.Status,
		Actor:      actor,
	}
	if dto.Reason != "" {
		history.Reason = &dto.Reason
	}

	if err := s.repo.TransitionStatus(o, dto.Status, nil, history); err != nil {
		return nil, errors.NewInternalError("transition order status", err)
	}

	s.eventBus.Publish(ctx, events.NewOrderStatusChangedEvent(o.ID, o.OrderCode, fromStatus, dto.Status, actor))

	items, err := s.repo.GetOrderItems(o.ID)
	if err != nil {
		return nil, errors.NewInternalError("lookup order items", err)
	}
	return ToOrderView(o, items, false), nil
}
