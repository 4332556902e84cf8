package order_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/order-management/internal/order"
)

type countingReconciler struct {
	mu         sync.Mutex
	references []string
}

func (c *countingReconciler) Reconcile(ctx context.Context, reference, trigger string) (*order.OrderView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.references = append(c.references, reference)
	return &order.OrderView{}, nil
}

func (c *countingReconciler) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.references...)
}

var _ = Describe("Reconcile Pool", func() {
	testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	It("processes enqueued references in the background", func() {
		engine := &countingReconciler{}
		pool := order.NewReconcilePool(engine, 4, 16, testLogger)
		defer pool.Shutdown()

		Expect(pool.Enqueue("pay-one")).To(BeTrue())
		Expect(pool.Enqueue("pay-two")).To(BeTrue())

		Eventually(engine.seen, 2*time.Second).Should(ConsistOf("pay-one", "pay-two"))
	})

	It("reports a full queue instead of blocking the caller", func() {
		engine := &countingReconciler{}
		pool := order.NewReconcilePool(engine, 1, 1, testLogger)
		defer pool.Shutdown()

		accepted := 0
		for i := 0; i < 50; i++ {
			if pool.Enqueue("pay-flood") {
				accepted++
			}
		}
		// At least one job fits the queue; the rest may be dropped, never
		// blocked on.
		Expect(accepted).To(BeNumerically(">=", 1))
	})

	It("drains workers on shutdown", func() {
		engine := &countingReconciler{}
		pool := order.NewReconcilePool(engine, 2, 4, testLogger)

		pool.Enqueue("pay-final")
		Eventually(engine.seen, 2*time.Second).Should(ContainElement("pay-final"))

		done := make(chan struct{})
		go func() {
			pool.Shutdown()
			close(done)
		}()
		Eventually(done, 2*time.Second).Should(BeClosed())
	})
})
