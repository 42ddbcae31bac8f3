package payment_test

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/frahmantamala/payment-reconciliation/internal"
	orderDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/order"
	paymentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Engine", func() {
	var f *fixture

	BeforeEach(func() {
		f = newFixture()
	})

	completed := func(data map[string]interface{}) payment.StatusUpdate {
		return payment.StatusUpdate{
			Status:                paymentDatamodel.StatusCompleted,
			GatewayData:           data,
			ProviderTransactionID: "T2401",
			PaymentMode:           "UPI_INTENT",
			Source:                payment.SourceWebhook,
		}
	}

	Describe("UpdatePaymentStatus", func() {
		It("moves an initiated payment to completed and links the order", func() {
			// Given an initiated payment for a pending order
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)

			// When a completed update arrives
			updated, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(map[string]interface{}{"state": "COMPLETED"}))

			// Then payment, transaction and order agree
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(updated.CompletedAt).NotTo(BeNil())

			stored := f.reload(p.ID)
			Expect(stored.Status).To(Equal(paymentDatamodel.StatusCompleted))

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(txn.TransactionID).To(Equal("T2401"))
			Expect(txn.PaymentMode).To(Equal("UPI_INTENT"))
			Expect(txn.ChecksumVerified).To(BeTrue())
			Expect(txn.CallbackReceivedAt).NotTo(BeNil())

			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusProcessing))
			Expect(f.publisher.types()).To(Equal([]string{events.EventTypePaymentCompleted}))

			logs := f.logs(p.ID)
			last := logs[len(logs)-1]
			Expect(last.Action).To(Equal(paymentDatamodel.ActionStatusUpdated))
			Expect(last.Details["old_status"]).To(Equal(paymentDatamodel.StatusInitiated))
			Expect(last.Details["new_status"]).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(last.Details["has_gateway_data"]).To(BeTrue())
		})

		It("is idempotent when the same status is applied twice", func() {
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())
			first := f.reload(p.ID)

			_, err = f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())
			second := f.reload(p.ID)

			Expect(second.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(*second.CompletedAt).To(BeTemporally("==", *first.CompletedAt))
			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusProcessing))
			Expect(f.countLogs(p.ID, paymentDatamodel.ActionStatusUpdated)).To(Equal(2))
			Expect(f.publisher.types()).To(HaveLen(1))
			Expect(f.countRows(&paymentDatamodel.Transaction{})).To(Equal(int64(1)))
		})

		It("keeps a completed payment completed when a later event claims pending", func() {
			p := f.newPayment("500", nil)
			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())

			updated, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{
				Status: paymentDatamodel.StatusPending,
				Source: payment.SourcePoll,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusCompleted))

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(paymentDatamodel.StatusCompleted))

			logs := f.logs(p.ID)
			last := logs[len(logs)-1]
			Expect(last.Action).To(Equal(paymentDatamodel.ActionStatusUpdateIgnored))
			Expect(last.Level).To(Equal(paymentDatamodel.LogLevelWarning))
			Expect(last.Details["attempted_status"]).To(Equal(paymentDatamodel.StatusPending))
		})

		It("does not let a failed event cancel the order of a completed payment", func() {
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)
			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())

			_, err = f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusFailed})
			Expect(err).NotTo(HaveOccurred())

			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusProcessing))
		})

		It("cancels the order when the payment fails", func() {
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)

			updated, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusFailed})

			Expect(err).NotTo(HaveOccurred())
			Expect(updated.FailedAt).NotTo(BeNil())
			Expect(updated.CompletedAt).To(BeNil())
			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusCancelled))
			Expect(f.publisher.types()).To(Equal([]string{events.EventTypePaymentFailed}))
		})

		It("leaves shipped orders alone", func() {
			o := f.newOrder(orderDatamodel.StatusShipped)
			p := f.newPayment("500", &o.ID)

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusFailed})

			Expect(err).NotTo(HaveOccurred())
			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusShipped))
		})

		It("does not touch the order for a pending update", func() {
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusPending})

			Expect(err).NotTo(HaveOccurred())
			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusPending))
			Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusPending))
			Expect(f.publisher.types()).To(BeEmpty())
		})

		It("stores the last gateway payload on the transaction", func() {
			p := f.newPayment("500", nil)
			data := map[string]interface{}{
				"state":  "COMPLETED",
				"amount": 50000,
				"paymentDetails": map[string]interface{}{
					"transactionId": "T2401",
					"splits":        []interface{}{"a", "b"},
				},
			}

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(data))
			Expect(err).NotTo(HaveOccurred())

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(txn.PaymentMode).To(Equal("UPI_INTENT"))
			Expect(txn.GatewayResponse["state"]).To(Equal("COMPLETED"))
			Expect(txn.GatewayResponse["amount"]).To(Equal(json.Number("50000")))
			details, ok := txn.GatewayResponse["paymentDetails"].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(details["transactionId"]).To(Equal("T2401"))
			Expect(details["splits"]).To(Equal([]interface{}{"a", "b"}))
		})

		It("stores values json cannot encode as strings", func() {
			p := f.newPayment("500", nil)
			at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(map[string]interface{}{
				"received_at": at,
				"fee":         decimal.RequireFromString("2.50"),
				"callback":    func() {},
			}))
			Expect(err).NotTo(HaveOccurred())

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.GatewayResponse["received_at"]).To(Equal("2024-03-01T10:00:00Z"))
			Expect(txn.GatewayResponse["fee"]).To(Equal("2.5"))
			Expect(txn.GatewayResponse["callback"]).To(BeAssignableToTypeOf(""))
		})

		It("creates a transaction when the payment has none", func() {
			p, err := f.ledger.CreatePayment(f.ctx, payment.CreatePaymentParams{
				UserID:  testUserID,
				Amount:  decimal.NewFromInt(250),
				Gateway: f.resolver.gw,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn).NotTo(BeNil())
			Expect(txn.Amount.Equal(decimal.NewFromInt(250))).To(BeTrue())
		})

		It("rejects unknown statuses", func() {
			p := f.newPayment("500", nil)

			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: "settled"})

			Expect(internal.IsErrorType(err, internal.ErrorTypeValidation)).To(BeTrue())
			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusInitiated))
		})

		It("reports missing payments", func() {
			_, err := f.engine.UpdatePaymentStatus(f.ctx, 999, completed(nil))

			Expect(err).To(MatchError(internal.ErrPaymentNotFound))
		})

		It("serializes concurrent updates and logs each call once", func() {
			o := f.newOrder(orderDatamodel.StatusPending)
			p := f.newPayment("500", &o.ID)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, status := range []string{paymentDatamodel.StatusCompleted, paymentDatamodel.StatusFailed} {
				wg.Add(1)
				go func(i int, status string) {
					defer GinkgoRecover()
					defer wg.Done()
					_, errs[i] = f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: status})
				}(i, status)
			}
			wg.Wait()

			Expect(errs[0]).NotTo(HaveOccurred())
			Expect(errs[1]).NotTo(HaveOccurred())

			stored := f.reload(p.ID)
			Expect(stored.Status).To(BeElementOf(paymentDatamodel.StatusCompleted, paymentDatamodel.StatusFailed))

			txn, err := f.repo.LatestTransaction(f.ctx, p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(txn.Status).To(Equal(stored.Status))

			Expect(f.countLogs(p.ID, paymentDatamodel.ActionStatusUpdated)).To(Equal(1))
			Expect(f.countLogs(p.ID, paymentDatamodel.ActionStatusUpdateIgnored)).To(Equal(1))

			if stored.Status == paymentDatamodel.StatusCompleted {
				Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusProcessing))
			} else {
				Expect(f.orderStatus(o.ID)).To(Equal(orderDatamodel.StatusCancelled))
			}
		})
	})

	Describe("ApplyRefundStatus", func() {
		var p *paymentDatamodel.Payment

		BeforeEach(func() {
			p = f.newPayment("500", nil)
			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, completed(nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = f.ledger.CreateRefund(f.ctx, p.ID, decimal.NewFromInt(500), "customer request")
			Expect(err).NotTo(HaveOccurred())
		})

		It("marks the payment refunded when the refund completes", func() {
			refund, updated, err := f.engine.ApplyRefundStatus(f.ctx, p.ID, payment.RefundUpdate{
				Status:           paymentDatamodel.RefundStatusCompleted,
				ProviderRefundID: "rfnd_1",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(refund.Status).To(Equal(paymentDatamodel.RefundStatusCompleted))
			Expect(refund.CompletedAt).NotTo(BeNil())
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusRefunded))
			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusRefunded))
			Expect(f.logActions(p.ID)).To(ContainElement(paymentDatamodel.ActionRefundCompleted))
			Expect(f.publisher.types()).To(ContainElement(events.EventTypePaymentRefunded))
		})

		It("keeps the payment completed while the refund is processing", func() {
			refund, updated, err := f.engine.ApplyRefundStatus(f.ctx, p.ID, payment.RefundUpdate{
				Status: paymentDatamodel.RefundStatusProcessing,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(refund.Status).To(Equal(paymentDatamodel.RefundStatusProcessing))
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusCompleted))
			Expect(f.logActions(p.ID)).NotTo(ContainElement(paymentDatamodel.ActionRefundCompleted))
		})

		It("never reopens a completed refund", func() {
			_, _, err := f.engine.ApplyRefundStatus(f.ctx, p.ID, payment.RefundUpdate{Status: paymentDatamodel.RefundStatusCompleted})
			Expect(err).NotTo(HaveOccurred())

			refund, updated, err := f.engine.ApplyRefundStatus(f.ctx, p.ID, payment.RefundUpdate{Status: paymentDatamodel.RefundStatusFailed})

			Expect(err).NotTo(HaveOccurred())
			Expect(refund.Status).To(Equal(paymentDatamodel.RefundStatusCompleted))
			Expect(updated.Status).To(Equal(paymentDatamodel.StatusRefunded))
		})

		It("is not a status update path", func() {
			_, err := f.engine.UpdatePaymentStatus(f.ctx, p.ID, payment.StatusUpdate{Status: paymentDatamodel.StatusRefunded})

			Expect(err).NotTo(HaveOccurred())
			Expect(f.reload(p.ID).Status).To(Equal(paymentDatamodel.StatusCompleted))
		})
	})
})
