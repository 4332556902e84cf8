package order

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
	"github.com/frahmantamala/order-management/internal/transport"
	"github.com/frahmantamala/order-management/pkg/logger"
)

const maxWebhookBody = 1 << 20

// webhookNotification is the gateway's push payload. Only the reference is
// trusted; everything else is re-verified against the gateway before any
// state changes.
type webhookNotification struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// NotificationRecorder persists the raw notification before any processing.
type NotificationRecorder interface {
	AppendTransaction(txn *ordermodel.PaymentTransaction) error
}

// ReconcileQueue defers reconciliation out of the request path.
type ReconcileQueue interface {
	Enqueue(reference string) bool
}

// WebhookHandler receives gateway payment notifications. It always responds
// 200 once the payload is durably recorded, even when reconciliation is
// deferred or the signature is invalid; the gateway must never be driven
// into a retry storm by downstream state.
type WebhookHandler struct {
	*transport.BaseHandler
	authenticator PaymentGateway
	recorder      NotificationRecorder
	queue         ReconcileQueue
}

func NewWebhookHandler(
	authenticator PaymentGateway,
	recorder NotificationRecorder,
	queue ReconcileQueue,
) *WebhookHandler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &WebhookHandler{
		BaseHandler:   transport.NewBaseHandler(lg),
		authenticator: authenticator,
		recorder:      recorder,
		queue:         queue,
	}
}

func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("webhook: failed to read body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get(paymentgateway.SignatureHeader)
	if !h.authenticator.AuthenticateNotification(body, signature) {
		// Unverifiable payloads are acknowledged without side effects so a
		// misconfigured sender cannot probe for state, and logged for ops.
		h.Logger.Warn("webhook: signature verification failed",
			"has_signature", signature != "",
			"body_size", len(body))
		h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var notification webhookNotification
	if err := json.Unmarshal(body, &notification); err != nil || notification.Data.Reference == "" {
		h.Logger.Warn("webhook: malformed notification payload", "error", err)
		h.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	txn := &ordermodel.PaymentTransaction{
		PaymentReference: notification.Data.Reference,
		Kind:             ordermodel.TransactionKindNotification,
		GatewayStatus:    notification.Data.Status,
		Amount:           float64(notification.Data.Amount) / 100,
		RawResponse:      json.RawMessage(body),
	}
	if err := h.recorder.AppendTransaction(txn); err != nil {
		// Without a durable record the gateway should retry delivery.
		h.Logger.Error("webhook: failed to record notification",
			"error", err,
			"reference", notification.Data.Reference)
		h.WriteError(w, http.StatusInternalServerError, "failed to record notification")
		return
	}

	queued := h.queue.Enqueue(notification.Data.Reference)

	h.Logger.Info("webhook: notification recorded",
		"reference", notification.Data.Reference,
		"event", notification.Event,
		"gateway_status", notification.Data.Status,
		"queued", queued)

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
