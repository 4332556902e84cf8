package order

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/order-management/internal/auth"
	"github.com/frahmantamala/order-management/internal/transport"
	"github.com/frahmantamala/order-management/pkg/logger"
)

// PermManageOrders gates the operator-only endpoints.
const PermManageOrders = "manage_orders"

type ServiceAPI interface {
	CreateOrder(ctx context.Context, userID int64, dto CreateOrderDTO) (*CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, userID int64, dto VerifyPaymentDTO) (*OrderView, error)
	PaymentStatus(ctx context.Context, userID int64, reference string) (*PaymentStatusView, error)
	GetOrder(ctx context.Context, userID int64, orderID int64, operator bool) (*OrderView, error)
	ListOrders(ctx context.Context, userID int64, limit, offset int) ([]*OrderView, error)
	CancelOrder(ctx context.Context, userID int64, orderID int64, dto CancelOrderDTO) (*OrderView, error)
	UpdateStatus(ctx context.Context, actor string, orderID int64, dto UpdateStatusDTO) (*OrderView, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CreateOrder: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto CreateOrderDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateOrder: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.CreateOrder(r.Context(), user.ID, dto)
	if err != nil {
		h.Logger.Error("CreateOrder: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateOrder: pending order created",
		"user_id", user.ID,
		"reference", resp.PaymentReference,
		"total", resp.Total)

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("VerifyPayment: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto VerifyPaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("VerifyPayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.Service.VerifyPayment(r.Context(), user.ID, dto)
	if err != nil {
		h.Logger.Error("VerifyPayment: service error", "error", err, "reference", dto.Reference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("PaymentStatus: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		h.WriteError(w, http.StatusBadRequest, "reference query parameter is required")
		return
	}

	view, err := h.Service.PaymentStatus(r.Context(), user.ID, reference)
	if err != nil {
		h.Logger.Error("PaymentStatus: service error", "error", err, "reference", reference)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("GetOrder: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("GetOrder: invalid order ID", "id", orderIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	view, err := h.Service.GetOrder(r.Context(), user.ID, orderID, user.HasPermission(PermManageOrders))
	if err != nil {
		h.Logger.Error("GetOrder: service error", "error", err, "order_id", orderID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("ListOrders: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	views, err := h.Service.ListOrders(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListOrders: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": views,
		"count":  len(views),
	})
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("CancelOrder: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("CancelOrder: invalid order ID", "id", orderIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var dto CancelOrderDTO
	if r.Body != nil {
		// Body is optional for cancellation.
		_ = json.NewDecoder(r.Body).Decode(&dto)
	}

	view, err := h.Service.CancelOrder(r.Context(), user.ID, orderID, dto)
	if err != nil {
		h.Logger.Error("CancelOrder: service error", "error", err, "order_id", orderID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CancelOrder: order cancelled", "order_id", orderID, "user_id", user.ID)

	h.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("UpdateStatus: user not found in context")
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !user.HasPermission(PermManageOrders) {
		h.Logger.Warn("UpdateStatus: permission denied", "user_id", user.ID)
		h.WriteError(w, http.StatusForbidden, "manage_orders permission required")
		return
	}

	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.ParseInt(orderIDStr, 10, 64)
	if err != nil {
		h.Logger.Error("UpdateStatus: invalid order ID", "id", orderIDStr)
		h.WriteError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var dto UpdateStatusDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("UpdateStatus: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := "operator:" + strconv.FormatInt(user.ID, 10)
	view, err := h.Service.UpdateStatus(r.Context(), actor, orderID, dto)
	if err != nil {
		h.Logger.Error("UpdateStatus: service error", "error", err, "order_id", orderID, "to", dto.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("UpdateStatus: order status updated",
		"order_id", orderID,
		"to", dto.Status,
		"actor", actor)

	h.WriteJSON(w, http.StatusOK, view)
}
