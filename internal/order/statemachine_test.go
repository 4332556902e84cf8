package order_test

import (
	"context"
	"log/slog"
	"os"
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

var _ = Describe("Order Status Machine", func() {
	Describe("CanTransition", func() {
		DescribeTable("legal transitions",
			func(from, to string, want bool) {
				Expect(order.CanTransition(from, to)).To(Equal(want))
			},
			Entry("pending to processing", ordermodel.StatusPending, ordermodel.StatusProcessing, true),
			Entry("pending to cancelled", ordermodel.StatusPending, ordermodel.StatusCancelled, true),
			Entry("pending to failed", ordermodel.StatusPending, ordermodel.StatusFailed, true),
			Entry("pending to shipped skips processing", ordermodel.StatusPending, ordermodel.StatusShipped, false),
			Entry("pending to delivered skips everything", ordermodel.StatusPending, ordermodel.StatusDelivered, false),
			Entry("processing to shipped", ordermodel.StatusProcessing, ordermodel.StatusShipped, true),
			Entry("processing to cancelled", ordermodel.StatusProcessing, ordermodel.StatusCancelled, true),
			Entry("shipped to delivered", ordermodel.StatusShipped, ordermodel.StatusDelivered, true),
			Entry("shipped to cancelled is too late", ordermodel.StatusShipped, ordermodel.StatusCancelled, false),
			Entry("delivered is terminal", ordermodel.StatusDelivered, ordermodel.StatusProcessing, false),
			Entry("cancelled is terminal", ordermodel.StatusCancelled, ordermodel.StatusPending, false),
			Entry("failed is terminal", ordermodel.StatusFailed, ordermodel.StatusPending, false),
			Entry("no self transition", ordermodel.StatusProcessing, ordermodel.StatusProcessing, false),
		)
	})

	Describe("Service transitions", func() {
		var (
			repo    *mockRepository
			gateway *mockGateway
			service *order.Service
			ctx     context.Context
			orderID int64
		)

		testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

		BeforeEach(func() {
			ctx = context.Background()
			repo = newMockRepository()
			catalog := &mockCatalog{repo: repo}
			gateway = newMockGateway()
			bus := events.NewEventBus(testLogger)
			service = order.NewService(repo, catalog, gateway, &seqIdentifier{}, &mockInvoices{}, bus, 24*time.Hour, testLogger)

			repo.addProduct(&product.Product{ID: 1, Name: "Mechanical Keyboard", Price: 50.00, Stock: 10, IsActive: true})

			resp, err := service.CreateOrder(ctx, 7, order.CreateOrderDTO{
				Items: []order.CartItemDTO{{ProductID: 1, Quantity: 3}},
				Delivery: order.DeliveryInfoDTO{
					RecipientName: "Ada Lovelace",
					Phone:         "+6281234567890",
					AddressLine:   "12 Analytical Engine Way",
					City:          "Jakarta",
					PostalCode:    "10110",
				},
			})
			Expect(err).NotTo(HaveOccurred())

			gateway.settle(resp.PaymentReference, paymentgateway.StatusSucceeded, 150.00)
			view, err := service.Reconcile(ctx, resp.PaymentReference, order.TriggerVerify)
			Expect(err).NotTo(HaveOccurred())
			orderID = view.ID
		})

		Describe("UpdateStatus", func() {
			It("walks an order through fulfillment with history rows", func() {
				historyBefore := len(repo.history)

				view, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusProcessing})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusProcessing))

				view, err = service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusShipped})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusShipped))

				view, err = service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusDelivered})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusDelivered))

				Expect(repo.history).To(HaveLen(historyBefore + 3))
				last := repo.history[len(repo.history)-1]
				Expect(last.FromStatus).To(Equal(ordermodel.StatusShipped))
				Expect(last.ToStatus).To(Equal(ordermodel.StatusDelivered))
				Expect(last.Actor).To(Equal("operator:1"))
			})

			It("rejects an illegal jump with no side effects", func() {
				historyBefore := len(repo.history)

				_, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusDelivered})
				Expect(err).To(Equal(apperrors.ErrInvalidStatusTransition))

				o, _ := repo.GetOrderByID(orderID)
				Expect(o.Status).To(Equal(ordermodel.StatusPending))
				Expect(repo.history).To(HaveLen(historyBefore))
			})

			It("rejects unknown statuses", func() {
				_, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: "teleported"})
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeValidationFailed))
			})

			It("restores stock when an operator cancels", func() {
				Expect(repo.stockOf(1)).To(Equal(7))

				view, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusCancelled, Reason: "customer request"})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusCancelled))
				Expect(view.PaymentStatus).To(Equal(ordermodel.PaymentStatusCancelled))
				Expect(repo.stockOf(1)).To(Equal(10))
			})
		})

		Describe("CancelOrder", func() {
			It("cancels a pending order, restores stock and appends one history row", func() {
				historyBefore := len(repo.history)
				Expect(repo.stockOf(1)).To(Equal(7))

				view, err := service.CancelOrder(ctx, 7, orderID, order.CancelOrderDTO{Reason: "changed my mind"})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusCancelled))
				Expect(repo.stockOf(1)).To(Equal(10))

				Expect(repo.history).To(HaveLen(historyBefore + 1))
				last := repo.history[len(repo.history)-1]
				Expect(last.ToStatus).To(Equal(ordermodel.StatusCancelled))
				Expect(last.Actor).To(Equal("user:7"))
				Expect(last.Reason).NotTo(BeNil())
				Expect(*last.Reason).To(Equal("changed my mind"))
			})

			It("cancels a processing order", func() {
				_, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusProcessing})
				Expect(err).NotTo(HaveOccurred())

				view, err := service.CancelOrder(ctx, 7, orderID, order.CancelOrderDTO{})
				Expect(err).NotTo(HaveOccurred())
				Expect(view.Status).To(Equal(ordermodel.StatusCancelled))
			})

			It("refuses to cancel a shipped order", func() {
				_, err := service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusProcessing})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.UpdateStatus(ctx, "operator:1", orderID, order.UpdateStatusDTO{Status: ordermodel.StatusShipped})
				Expect(err).NotTo(HaveOccurred())

				_, err = service.CancelOrder(ctx, 7, orderID, order.CancelOrderDTO{})
				Expect(err).To(Equal(apperrors.ErrInvalidStatusTransition))
				Expect(repo.stockOf(1)).To(Equal(7))
			})

			It("refuses to cancel someone else's order", func() {
				_, err := service.CancelOrder(ctx, 99, orderID, order.CancelOrderDTO{})
				Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
			})

			It("refuses to cancel twice", func() {
				_, err := service.CancelOrder(ctx, 7, orderID, order.CancelOrderDTO{})
				Expect(err).NotTo(HaveOccurred())

				_, err = service.CancelOrder(ctx, 7, orderID, order.CancelOrderDTO{})
				Expect(err).To(Equal(apperrors.ErrInvalidStatusTransition))
				Expect(repo.stockOf(1)).To(Equal(10))
			})
		})
	})
})
