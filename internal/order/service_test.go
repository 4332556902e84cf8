package order_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/order-management/internal"
	ordermodel "github.com/frahmantamala/order-management/internal/core/datamodel/order"
	"github.com/frahmantamala/order-management/internal/core/datamodel/product"
	"github.com/frahmantamala/order-management/internal/core/events"
	"github.com/frahmantamala/order-management/internal/order"
	"github.com/frahmantamala/order-management/internal/paymentgateway"
)

var _ = Describe("Order Service", func() {
	var (
		repo     *mockRepository
		catalog  *mockCatalog
		gateway  *mockGateway
		ids      *seqIdentifier
		invoices *mockInvoices
		service  *order.Service
		ctx      context.Context
	)

	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	validCart := func() order.CreateOrderDTO {
		return order.CreateOrderDTO{
			Items: []order.CartItemDTO{
				{ProductID: 1, Quantity: 2},
				{ProductID: 2, Quantity: 1},
			},
			Delivery: order.DeliveryInfoDTO{
				RecipientName: "Ada Lovelace",
				Phone:         "+6281234567890",
				AddressLine:   "12 Analytical Engine Way",
				City:          "Jakarta",
				PostalCode:    "10110",
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockRepository()
		catalog = &mockCatalog{repo: repo}
		gateway = newMockGateway()
		ids = &seqIdentifier{}
		invoices = &mockInvoices{}
		bus := events.NewEventBus(testLogger)
		service = order.NewService(repo, catalog, gateway, ids, invoices, bus, 24*time.Hour, testLogger)

		repo.addProduct(&product.Product{ID: 1, Name: "Mechanical Keyboard", Price: 50.00, Stock: 10, IsActive: true})
		repo.addProduct(&product.Product{ID: 2, Name: "USB Hub", Price: 50.00, Stock: 5, IsActive: true})
	})

	Describe("CreateOrder", func() {
		It("creates a pending order with server-computed totals", func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.PaymentReference).To(HavePrefix("pay-"))
			Expect(resp.CheckoutURL).To(Equal(gateway.checkoutURL))
			Expect(resp.Total).To(Equal(150.00))
			Expect(resp.ExpiresAt).To(BeTemporally("~", time.Now().Add(24*time.Hour), time.Minute))

			pending, err := repo.GetPendingByReference(resp.PaymentReference)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusPending))
			Expect(pending.UserID).To(Equal(int64(7)))
		})

		It("records an initialize transaction", func() {
			_, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.transactionCount(ordermodel.TransactionKindInitialize)).To(Equal(1))
		})

		It("does not reserve stock at creation", func() {
			_, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.stockOf(1)).To(Equal(10))
			Expect(repo.stockOf(2)).To(Equal(5))
		})

		It("rejects an empty cart", func() {
			dto := validCart()
			dto.Items = nil
			_, err := service.CreateOrder(ctx, 7, dto)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeEmptyCart))
		})

		It("rejects a zero quantity", func() {
			dto := validCart()
			dto.Items[0].Quantity = 0
			_, err := service.CreateOrder(ctx, 7, dto)
			Expect(err).To(HaveOccurred())
		})

		It("rejects unknown products", func() {
			dto := validCart()
			dto.Items[0].ProductID = 999
			_, err := service.CreateOrder(ctx, 7, dto)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeUnknownProduct))
		})

		It("rejects inactive products", func() {
			repo.addProduct(&product.Product{ID: 3, Name: "Retired Gadget", Price: 10, Stock: 4, IsActive: false})
			dto := validCart()
			dto.Items[0].ProductID = 3
			_, err := service.CreateOrder(ctx, 7, dto)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeUnknownProduct))
		})

		It("rejects carts that exceed available stock with details", func() {
			dto := validCart()
			dto.Items[1].Quantity = 6
			_, err := service.CreateOrder(ctx, 7, dto)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeInsufficientStock))

			items, ok := appErr.Details.([]apperrors.InsufficientStockItem)
			Expect(ok).To(BeTrue())
			Expect(items).To(HaveLen(1))
			Expect(items[0].ProductID).To(Equal(int64(2)))
			Expect(items[0].Requested).To(Equal(6))
			Expect(items[0].Available).To(Equal(5))
		})

		It("persists nothing when the gateway is unreachable", func() {
			gateway.initErr = errors.New("connection refused")
			_, err := service.CreateOrder(ctx, 7, validCart())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentGatewayUnavailable))
			Expect(repo.pendings).To(BeEmpty())
		})

		It("snapshots prices so later catalog edits do not change the total", func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())

			repo.mu.Lock()
			repo.products[1].Price = 500.00
			repo.mu.Unlock()

			gateway.settle(resp.PaymentReference, paymentgateway.StatusSucceeded, 150.00)
			view, err := service.Reconcile(ctx, resp.PaymentReference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Total).To(Equal(150.00))
			Expect(view.Items[0].UnitPrice).To(Equal(50.00))
		})
	})

	Describe("Reconcile", func() {
		var reference string

		BeforeEach(func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			reference = resp.PaymentReference
		})

		It("returns payment-not-confirmed while the gateway still reports pending", func() {
			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPaymentNotConfirmed))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusPending))
		})

		It("confirms the order once the gateway reports success", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			view, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Status).To(Equal(ordermodel.StatusPending))
			Expect(view.PaymentStatus).To(Equal(ordermodel.PaymentStatusPaid))
			Expect(view.OrderCode).To(HavePrefix("ORD-"))
			Expect(view.PaidAt).NotTo(BeNil())
			Expect(view.Items).To(HaveLen(2))

			Expect(repo.stockOf(1)).To(Equal(8))
			Expect(repo.stockOf(2)).To(Equal(4))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusSuccess))
		})

		It("attaches invoice artifacts on confirmation", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			view, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.InvoiceDocURL).NotTo(BeNil())
			Expect(*view.InvoiceDocURL).To(ContainSubstring("invoice.pdf"))
			Expect(view.InvoiceImageURL).NotTo(BeNil())
			Expect(view.InvoicePending).To(BeFalse())
		})

		It("still confirms when invoice generation fails", func() {
			invoices.generateErr = errors.New("renderer crashed")
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			view, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.InvoiceDocURL).To(BeNil())
			Expect(view.InvoicePending).To(BeTrue())

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusSuccess))
		})

		It("is idempotent: repeated reconciliation returns the same order without re-verifying", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			first, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())

			callsAfterFirst := gateway.verifyCalls
			second, err := service.Reconcile(ctx, reference, order.TriggerWebhook)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.OrderCode).To(Equal(first.OrderCode))
			Expect(gateway.verifyCalls).To(Equal(callsAfterFirst))

			// Stock was only decremented once.
			Expect(repo.stockOf(1)).To(Equal(8))
			Expect(repo.stockOf(2)).To(Equal(4))
		})

		It("creates exactly one order under concurrent reconciliation", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			const callers = 8
			results := make([]*order.OrderView, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					view, err := service.Reconcile(ctx, reference, order.TriggerVerify)
					if err == nil {
						results[i] = view
					}
				}(i)
			}
			wg.Wait()

			Expect(repo.orders).To(HaveLen(1))
			Expect(repo.stockOf(1)).To(Equal(8))
			Expect(repo.stockOf(2)).To(Equal(4))

			var settled *order.OrderView
			for _, view := range results {
				if view == nil {
					continue
				}
				if settled == nil {
					settled = view
					continue
				}
				Expect(view.ID).To(Equal(settled.ID))
				Expect(view.OrderCode).To(Equal(settled.OrderCode))
			}
			Expect(settled).NotTo(BeNil())
		})

		It("marks the pending order failed when the gateway reports failure", func() {
			gateway.settle(reference, paymentgateway.StatusFailed, 0)

			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPaymentFailed))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusFailed))
		})

		It("keeps failure terminal even if the gateway would later succeed", func() {
			gateway.settle(reference, paymentgateway.StatusFailed, 0)
			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPaymentFailed))

			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)
			_, err = service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPaymentFailed))
			Expect(repo.orders).To(BeEmpty())
		})

		It("queues a refund review when stock ran out after payment", func() {
			// Drain product 2 between checkout and settlement.
			repo.mu.Lock()
			repo.products[2].Stock = 0
			repo.mu.Unlock()

			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)

			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeStockExhaustedAfterPayment))

			// No partial fulfillment: product 1 decrement rolled back.
			Expect(repo.stockOf(1)).To(Equal(10))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusFailed))

			Expect(repo.reviews).To(HaveLen(1))
			Expect(repo.reviews[0].Reason).To(Equal(ordermodel.ReviewReasonStockExhausted))
			Expect(repo.reviews[0].PaymentReference).To(Equal(reference))
		})

		It("queues a refund review on settled amount mismatch", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 120.00)

			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPaymentFailed))

			Expect(repo.orders).To(BeEmpty())
			Expect(repo.reviews).To(HaveLen(1))
			Expect(repo.reviews[0].Reason).To(Equal(ordermodel.ReviewReasonAmountMismatch))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusFailed))
		})

		It("retries identifier collisions with fresh draws", func() {
			// Next two draws repeat the previous counter value, colliding
			// with identifiers already taken by an existing order.
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)
			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())

			resp2, err := service.CreateOrder(ctx, 8, order.CreateOrderDTO{
				Items: []order.CartItemDTO{{ProductID: 1, Quantity: 1}},
				Delivery: order.DeliveryInfoDTO{
					RecipientName: "Grace Hopper",
					Phone:         "+6280000000001",
					AddressLine:   "1 Compiler Court",
					City:          "Bandung",
					PostalCode:    "40111",
				},
			})
			Expect(err).NotTo(HaveOccurred())

			ids.mu.Lock()
			ids.counter -= 3 // replay the first order's code and invoice draws
			ids.mu.Unlock()

			gateway.settle(resp2.PaymentReference, paymentgateway.StatusSucceeded, 50.00)
			view, err := service.Reconcile(ctx, resp2.PaymentReference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.orders).To(HaveLen(2))
			Expect(view.OrderCode).NotTo(BeEmpty())
		})

		It("returns not found for an unknown reference", func() {
			_, err := service.Reconcile(ctx, "pay-doesnotexist000", order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPendingOrderNotFound))
		})

		It("surfaces gateway outages without changing state", func() {
			gateway.verifyErr = errors.New("timeout")
			_, err := service.Reconcile(ctx, reference, order.TriggerVerify)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentGatewayUnavailable))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusPending))
		})
	})

	Describe("VerifyPayment", func() {
		var reference string

		BeforeEach(func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			reference = resp.PaymentReference
		})

		It("refuses to verify another user's pending order", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)
			_, err := service.VerifyPayment(ctx, 99, order.VerifyPaymentDTO{Reference: reference})
			Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
			Expect(repo.orders).To(BeEmpty())
		})

		It("confirms the owner's order", func() {
			gateway.settle(reference, paymentgateway.StatusSucceeded, 150.00)
			view, err := service.VerifyPayment(ctx, 7, order.VerifyPaymentDTO{Reference: reference})
			Expect(err).NotTo(HaveOccurred())
			Expect(view.PaymentStatus).To(Equal(ordermodel.PaymentStatusPaid))
		})
	})

	Describe("PaymentStatus", func() {
		var reference string

		BeforeEach(func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())
			reference = resp.PaymentReference
		})

		It("reports the gateway status without mutating the pending order", func() {
			view, err := service.PaymentStatus(ctx, 7, reference)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Status).To(Equal(string(paymentgateway.StatusPending)))

			pending, _ := repo.GetPendingByReference(reference)
			Expect(pending.Status).To(Equal(ordermodel.PendingStatusPending))
			Expect(repo.orders).To(BeEmpty())
		})

		It("enforces ownership", func() {
			_, err := service.PaymentStatus(ctx, 99, reference)
			Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
		})
	})

	Describe("Expiry", func() {
		It("never confirms an abandoned pending order", func() {
			resp, err := service.CreateOrder(ctx, 7, validCart())
			Expect(err).NotTo(HaveOccurred())

			// Simulate the sweeper acting after the payment window closed.
			repo.mu.Lock()
			repo.pendings[resp.PaymentReference].Status = ordermodel.PendingStatusAbandoned
			repo.mu.Unlock()

			gateway.settle(resp.PaymentReference, paymentgateway.StatusSucceeded, 150.00)
			_, err = service.Reconcile(ctx, resp.PaymentReference, order.TriggerVerify)
			Expect(err).To(Equal(apperrors.ErrPendingOrderNotFound))
			Expect(repo.orders).To(BeEmpty())
			Expect(repo.stockOf(1)).To(Equal(10))
		})
	})
})
